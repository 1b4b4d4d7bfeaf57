// Package srt receives MPEG transport streams over SRT. Server accepts
// publishers in listener mode; Caller pulls from remote listeners. Both
// write into ingest sessions.
package srt
