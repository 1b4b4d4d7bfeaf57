// Package pipeline decodes the PGS streams of one live transport stream:
// extract display sets, assemble them per PID, render and hand each frame
// to a sink and an event publisher.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/zsiec/pgsd/internal/events"
	"github.com/zsiec/pgsd/internal/tsextract"
	"github.com/zsiec/pgsd/pgs"
	"github.com/zsiec/pgsd/render"
)

// Sink stores rendered frames. *output.Writer implements it.
type Sink interface {
	Write(prefix string, index int, f *render.Frame) (string, error)
}

// Counters receives per-stream statistics. *stream.Stream implements it.
type Counters interface {
	DisplaySet()
	FrameWritten()
	EmptySet()
	RenderFailure()
	ProtocolError()
}

type nopCounters struct{}

func (nopCounters) DisplaySet()    {}
func (nopCounters) FrameWritten()  {}
func (nopCounters) EmptySet()      {}
func (nopCounters) RenderFailure() {}
func (nopCounters) ProtocolError() {}

// Config wires a Pipeline. Only Key and Sink are required.
type Config struct {
	Key       string
	Session   uuid.UUID
	Sink      Sink
	Publisher events.Publisher // nil means events.Nop
	Counters  Counters
	KeepEmpty bool // write frames for display sets without objects
	Render    render.Options
	Log       *slog.Logger
}

type track struct {
	asm    *pgs.Assembler
	index  int
	failed bool
}

// Pipeline decodes one stream. It is not safe for concurrent use.
type Pipeline struct {
	cfg    Config
	log    *slog.Logger
	input  io.Reader
	tracks map[uint16]*track
}

// New creates a Pipeline reading a transport stream from input.
func New(cfg Config, input io.Reader) *Pipeline {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Counters == nil {
		cfg.Counters = nopCounters{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		log:    log.With("component", "pipeline", "stream", cfg.Key),
		input:  input,
		tracks: make(map[uint16]*track),
	}
}

// Run decodes until the input ends or ctx is cancelled. Bad display sets
// are logged and counted; only demux failures end the run with an error.
func (p *Pipeline) Run(ctx context.Context) error {
	ex := tsextract.New(ctx, p.input, tsextract.WithLogger(p.log))
	for {
		u, err := ex.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "pipeline %s", p.cfg.Key)
		}
		p.unit(ctx, u)
	}

	for pid, t := range p.tracks {
		if t.failed {
			continue
		}
		if err := t.asm.Finish(); err != nil {
			p.log.Warn("stream ended inside a display set", "pid", pid, "error", err)
		}
	}
	st := ex.Stats()
	p.log.Info("pipeline finished", "display_sets", st.Units, "orphan_segments", st.OrphanSegments,
		"abandoned_sets", st.AbandonedSets, "malformed_packets", st.MalformedPackets,
		"untimed_sets", st.UntimedSets, "foreign_pes", st.ForeignPES, "filtered_packets", st.FilteredPackets)
	return nil
}

func (p *Pipeline) unit(ctx context.Context, u *tsextract.Unit) {
	t, ok := p.tracks[u.PID]
	if !ok {
		t = &track{asm: pgs.NewAssembler()}
		p.tracks[u.PID] = t
		p.log.Info("decoding PGS stream", "pid", u.PID)
	}
	if t.failed {
		return
	}

	segs, err := u.Segments()
	if err != nil {
		p.cfg.Counters.ProtocolError()
		p.log.Warn("dropping unparsable display set", "pid", u.PID, "pts", u.PTS, "error", err)
		return
	}
	for _, seg := range segs {
		ds, err := t.asm.Push(seg)
		if err != nil {
			// The assembler is sticky after a violation; stop this PID.
			t.failed = true
			p.cfg.Counters.ProtocolError()
			p.log.Error("protocol violation, abandoning PGS stream", "pid", u.PID, "pts", u.PTS, "error", err)
			return
		}
		if ds != nil {
			p.displaySet(ctx, u.PID, t.index, ds)
			t.index++
		}
	}
}

func (p *Pipeline) displaySet(ctx context.Context, pid uint16, index int, ds *pgs.DisplaySet) {
	p.cfg.Counters.DisplaySet()
	ev := events.NewEvent(p.cfg.Key, pid, index)
	ev.Session = p.sessionID()
	ev.PTS = ds.PTS
	ev.PTSMilli = ds.PresentationTime().Milliseconds()
	ev.Width, ev.Height = ds.Width(), ds.Height()
	ev.Objects = len(ds.Placements())

	switch {
	case ds.Empty() && !p.cfg.KeepEmpty:
		p.cfg.Counters.EmptySet()
	default:
		frame, err := p.cfg.Render.Render(ds)
		if err != nil {
			p.cfg.Counters.RenderFailure()
			ev.Error = err.Error()
			p.log.Warn("render failed", "pid", pid, "index", index, "pts", ds.PTS, "error", err)
			break
		}
		path, err := p.cfg.Sink.Write(p.prefix(pid), index, frame)
		if err != nil {
			ev.Error = err.Error()
			p.log.Warn("frame write failed", "pid", pid, "index", index, "error", err)
			break
		}
		ev.File = path
		p.cfg.Counters.FrameWritten()
		p.log.Debug("frame written", "pid", pid, "index", index, "pts", ds.PTS, "file", path)
	}

	if err := p.cfg.Publisher.Publish(ctx, ev); err != nil {
		p.log.Debug("event not published", "pid", pid, "index", index, "error", err)
	}
}

// prefix names frames "<key>_<pid>", with slashes in the key flattened.
func (p *Pipeline) prefix(pid uint16) string {
	key := []byte(p.cfg.Key)
	for i, c := range key {
		if c == '/' || c == '\\' {
			key[i] = '-'
		}
	}
	return fmt.Sprintf("%s_%d", key, pid)
}

func (p *Pipeline) sessionID() string {
	if p.cfg.Session == uuid.Nil {
		return ""
	}
	return p.cfg.Session.String()
}
