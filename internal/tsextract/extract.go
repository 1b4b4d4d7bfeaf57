// Package tsextract pulls PGS elementary streams out of MPEG transport
// streams and re-frames them as .sup segments.
//
// Inside a transport stream each PES packet carries one or more bare
// segments (type, length, body). Every PES has its own timestamps, so the
// extractor stamps all segments of a display set with the timestamps of the
// PES that carried its composition segment. That keeps each display set's
// segments sharing one timestamp pair, which the assembler requires.
package tsextract

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/zsiec/pgsd/internal/mpegts"
	"github.com/zsiec/pgsd/pgs"
)

const (
	segComposition = 0x16
	segEnd         = 0x80
	segHeaderSize  = 3 // type u8, length u16
)

// Unit is the .sup encoding of one complete display set.
type Unit struct {
	PID  uint16
	PTS  uint32
	DTS  uint32
	Data []byte
}

// Track is a whole PGS stream re-framed as a .sup file.
type Track struct {
	PID      uint16
	Language string
	Data     []byte
	Units    int
}

// Stats counts what the extractor had to throw away.
type Stats struct {
	Units            int64
	OrphanSegments   int64 // segments before any composition on their PID
	AbandonedSets    int64 // display sets cut off by a new composition or EOF
	MalformedPackets int64
	UntimedSets      int64 // compositions in a PES without PTS
	ForeignPES       int64 // PES on a PGS PID with a stream id other than 0xBD
	FilteredPackets  int64 // packets on PIDs that carry no PGS
}

type pidState struct {
	language string
	open     bool
	pts, dts uint32
	pending  []byte
}

// Extractor reads a transport stream and returns PGS display sets.
type Extractor struct {
	log    *slog.Logger
	dmx    *mpegts.Demuxer
	only   uint16
	size   int
	pids   map[uint16]*pidState
	ready  []*Unit
	stats  Stats
	closed bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPID restricts extraction to a single PGS PID.
func WithPID(pid uint16) Option {
	return func(e *Extractor) { e.only = pid }
}

// WithPacketSize fixes the transport packet size (188 or 192) instead of
// detecting it.
func WithPacketSize(n int) Option {
	return func(e *Extractor) { e.size = n }
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(e *Extractor) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an Extractor reading a 188- or 192-byte packet stream from r.
func New(ctx context.Context, r io.Reader, opts ...Option) *Extractor {
	e := &Extractor{
		log:  slog.Default(),
		pids: make(map[uint16]*pidState),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "tsextract")
	dmxOpts := []func(*mpegts.Demuxer){mpegts.DemuxerOptFilterPIDs()}
	if e.size != 0 {
		dmxOpts = append(dmxOpts, mpegts.DemuxerOptPacketSize(e.size))
	}
	e.dmx = mpegts.NewDemuxer(ctx, r, dmxOpts...)
	return e
}

// Stats returns the extractor's counters so far.
func (e *Extractor) Stats() Stats {
	st := e.stats
	st.FilteredPackets = e.dmx.Stats().FilteredPackets
	return st
}

// PIDs returns the PGS PIDs discovered so far in ascending order.
func (e *Extractor) PIDs() []uint16 {
	return slices.Sorted(maps.Keys(e.pids))
}

// Next returns the next complete display set. It returns io.EOF once the
// stream is exhausted.
func (e *Extractor) Next() (*Unit, error) {
	for len(e.ready) == 0 {
		if e.closed {
			return nil, io.EOF
		}
		data, err := e.dmx.NextData()
		if errors.Is(err, io.EOF) {
			e.finish()
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "tsextract: demux")
		}
		switch {
		case data.PMT != nil:
			e.learn(data.PMT)
		case data.PES != nil:
			if st, ok := e.pids[data.PID()]; ok {
				e.consume(data.PID(), st, data.PES)
			}
		}
	}
	u := e.ready[0]
	e.ready = e.ready[1:]
	return u, nil
}

// Extract reads the whole stream and returns one Track per PGS PID, in
// PID order. PIDs announced by the PMT but never carrying a display set
// are included with empty Data.
func (e *Extractor) Extract() ([]Track, error) {
	byPID := make(map[uint16]*Track)
	for {
		u, err := e.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t, ok := byPID[u.PID]
		if !ok {
			t = &Track{PID: u.PID}
			byPID[u.PID] = t
		}
		t.Data = append(t.Data, u.Data...)
		t.Units++
	}

	tracks := make([]Track, 0, len(e.pids))
	for _, pid := range e.PIDs() {
		t := Track{PID: pid}
		if got, ok := byPID[pid]; ok {
			t = *got
		}
		t.Language = e.pids[pid].language
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (e *Extractor) learn(pmt *mpegts.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		if !es.IsPGS() || (e.only != 0 && es.ElementaryPID != e.only) {
			continue
		}
		if _, ok := e.pids[es.ElementaryPID]; ok {
			continue
		}
		e.pids[es.ElementaryPID] = &pidState{language: es.Language}
		e.dmx.Follow(es.ElementaryPID)
		e.log.Debug("found PGS stream", "pid", es.ElementaryPID, "language", es.Language)
	}
}

// consume splits a PES payload into segments and frames them.
func (e *Extractor) consume(pid uint16, st *pidState, pes *mpegts.PESData) {
	if !pes.IsPrivateStream1() {
		e.stats.ForeignPES++
		e.log.Warn("PES on PGS PID is not private_stream_1", "pid", pid, "stream_id", pes.Header.StreamID)
		return
	}
	pts, dts, timed := pes.SupTimestamps()

	data := pes.Data
	for len(data) > 0 {
		if len(data) < segHeaderSize {
			e.malformed(pid, "segment header", len(data))
			return
		}
		typ := data[0]
		n := int(binary.BigEndian.Uint16(data[1:3]))
		if len(data) < segHeaderSize+n {
			e.malformed(pid, "segment body", len(data))
			return
		}
		seg := data[:segHeaderSize+n]
		data = data[segHeaderSize+n:]

		if typ == segComposition {
			if st.open {
				e.stats.AbandonedSets++
				e.log.Warn("display set without end segment", "pid", pid, "pts", st.pts)
			}
			st.open, st.pts, st.dts, st.pending = timed, pts, dts, nil
			if !timed {
				e.stats.UntimedSets++
				e.log.Warn("composition segment in PES without PTS", "pid", pid)
				continue
			}
		}
		if !st.open {
			e.stats.OrphanSegments++
			continue
		}

		st.pending = appendSegment(st.pending, st.pts, st.dts, seg)
		if typ == segEnd {
			e.ready = append(e.ready, &Unit{PID: pid, PTS: st.pts, DTS: st.dts, Data: st.pending})
			e.stats.Units++
			st.open, st.pending = false, nil
		}
	}
}

func (e *Extractor) malformed(pid uint16, what string, have int) {
	e.stats.MalformedPackets++
	e.log.Warn("truncated PGS segment in PES", "pid", pid, "field", what, "remaining", have)
}

func (e *Extractor) finish() {
	e.closed = true
	for _, pid := range e.PIDs() {
		if st := e.pids[pid]; st.open {
			e.stats.AbandonedSets++
			e.log.Warn("stream ended inside display set", "pid", pid, "pts", st.pts)
		}
	}
	st := e.dmx.Stats()
	e.log.Debug("demux finished",
		"packets", st.Packets,
		"corrupt_packets", st.CorruptPackets,
		"corrupt_units", st.CorruptUnits,
		"display_sets", e.stats.Units,
	)
}

// appendSegment frames a bare segment with the .sup header.
func appendSegment(dst []byte, pts, dts uint32, seg []byte) []byte {
	dst = append(dst, 'P', 'G')
	dst = binary.BigEndian.AppendUint32(dst, pts)
	dst = binary.BigEndian.AppendUint32(dst, dts)
	return append(dst, seg...)
}

// Segments parses a unit into pgs segments.
func (u *Unit) Segments() ([]pgs.Segment, error) {
	return pgs.Parse(u.Data)
}
