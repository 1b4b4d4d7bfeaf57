// Package pgs decodes Presentation Graphics Stream (PGS) subtitle data, the
// bitmap subtitle format carried on Blu-ray discs and in .sup files.
//
// Decoding happens in two steps. [Parse] turns a complete byte buffer into
// an ordered slice of [Segment] values, run-length decoding object bitmaps
// along the way. [DisplaySets] then walks those segments and groups them
// into [DisplaySet] snapshots, each carrying every window, palette and
// object that is live at that moment of the epoch. Rendering a DisplaySet
// into pixels is the job of [github.com/zsiec/pgsd/render].
//
// For streams that arrive incrementally, [Assembler] exposes the same state
// machine push-style: feed it segments with [Assembler.Push] and it returns
// a DisplaySet whenever an End segment closes a group.
package pgs
