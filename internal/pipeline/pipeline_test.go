package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/zsiec/pgsd/internal/events"
	"github.com/zsiec/pgsd/internal/pgstest"
	"github.com/zsiec/pgsd/internal/stream"
	"github.com/zsiec/pgsd/render"
)

const (
	pmtPID = 0x0100
	pgsPID = 0x1200
)

type written struct {
	prefix string
	index  int
	frame  *render.Frame
}

type memSink struct {
	mu     sync.Mutex
	frames []written
	err    error
}

func (s *memSink) Write(prefix string, index int, f *render.Frame) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.frames = append(s.frames, written{prefix, index, f})
	return prefix + ".png", nil
}

type memPublisher struct {
	events []events.Event
}

func (p *memPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) Close() error { return nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// bare returns the stream's segments without the .sup prefix of the first.
func bare(build func(s *pgstest.Stream)) []byte {
	var s pgstest.Stream
	build(&s)
	return s.Bytes()[10:]
}

func subtitle(objectID uint16) []byte {
	return bytes.Join([][]byte{
		bare(func(s *pgstest.Stream) {
			s.PCS(pgstest.Composition{Width: 4, Height: 2, State: pgstest.EpochStart,
				Objects: []pgstest.Object{{ID: objectID}}})
		}),
		bare(func(s *pgstest.Stream) { s.WDS(pgstest.Window{Width: 4, Height: 2}) }),
		bare(func(s *pgstest.Stream) { s.PDS(0, 0, pgstest.Entry{ID: 1, Y: 235, Cr: 128, Cb: 128, A: 255}) }),
		bare(func(s *pgstest.Stream) { s.ODS(1, 0, 0xC0, 4, 2, pgstest.Fill(4, 2, 1)) }),
		bare(func(s *pgstest.Stream) { s.END() }),
	}, nil)
}

func clear() []byte {
	return bytes.Join([][]byte{
		bare(func(s *pgstest.Stream) { s.PCS(pgstest.Composition{Width: 4, Height: 2, Number: 1}) }),
		bare(func(s *pgstest.Stream) { s.END() }),
	}, nil)
}

func mux(payloads ...[]byte) io.Reader {
	m := &pgstest.Mux{}
	m.PAT(pmtPID)
	m.PMT(pmtPID, pgstest.ES{Type: pgstest.StreamTypePGS, PID: pgsPID, Language: "eng"})
	for i, p := range payloads {
		m.PES(pgsPID, pgstest.PrivateStream1, int64(i+1)*90000, -1, p)
	}
	return bytes.NewReader(m.Bytes())
}

func newStream(t *testing.T, key string) *stream.Stream {
	t.Helper()
	s, ok := stream.NewManager(quiet()).Create(key, uuid.New())
	if !ok {
		t.Fatal("Create failed")
	}
	return s
}

func TestRun_DecodesDisplaySets(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	pub := &memPublisher{}
	counters := newStream(t, "studio/cam")
	session := uuid.New()

	p := New(Config{Key: "studio/cam", Session: session, Sink: sink, Publisher: pub, Counters: counters, Log: quiet()},
		mux(subtitle(1), clear()))
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.frames) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(sink.frames))
	}
	w := sink.frames[0]
	if w.prefix != "studio-cam_4608" || w.index != 0 || w.frame.PTS != 90000 {
		t.Errorf("frame = %q #%d pts %d", w.prefix, w.index, w.frame.PTS)
	}
	if c := w.frame.RGBAAt(0, 0); c.A != 255 || c.R != 235 {
		t.Errorf("pixel = %v", c)
	}

	want := stream.Counters{DisplaySets: 2, FramesWritten: 1, EmptySets: 1}
	if c := counters.Counters(); c != want {
		t.Errorf("Counters = %+v, want %+v", c, want)
	}

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	first, second := pub.events[0], pub.events[1]
	if first.Index != 0 || first.PID != pgsPID || first.File != "studio-cam_4608.png" || first.Objects != 1 ||
		first.Session != session.String() || first.PTSMilli != 1000 {
		t.Errorf("first event = %+v", first)
	}
	if second.Index != 1 || second.Objects != 0 || second.File != "" || second.PTS != 180000 {
		t.Errorf("second event = %+v", second)
	}
}

func TestRun_KeepEmpty(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	p := New(Config{Key: "k", Sink: sink, KeepEmpty: true, Log: quiet()}, mux(clear()))
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.frames) != 1 || !sink.frames[0].frame.Blank() {
		t.Errorf("frames = %+v", sink.frames)
	}
}

func TestRun_FailuresAreCounted(t *testing.T) {
	t.Parallel()
	// An invalid composition state fails to parse.
	broken := clear()
	broken[3+7] = 0x20

	sink := &memSink{}
	pub := &memPublisher{}
	counters := newStream(t, "k")
	p := New(Config{Key: "k", Sink: sink, Publisher: pub, Counters: counters, Log: quiet()},
		mux(subtitle(9), broken, subtitle(1)))
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := stream.Counters{DisplaySets: 2, FramesWritten: 1, RenderFailures: 1, ProtocolErrors: 1}
	if c := counters.Counters(); c != want {
		t.Errorf("Counters = %+v, want %+v", c, want)
	}
	if len(pub.events) != 2 || !strings.Contains(pub.events[0].Error, "object") {
		t.Errorf("events = %+v", pub.events)
	}
	if len(sink.frames) != 1 || sink.frames[0].index != 1 {
		t.Errorf("frames = %+v", sink.frames)
	}
}

func TestRun_SinkError(t *testing.T) {
	t.Parallel()
	pub := &memPublisher{}
	p := New(Config{Key: "k", Sink: &memSink{err: errors.New("disk full")}, Publisher: pub, Log: quiet()},
		mux(subtitle(1)))
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 || pub.events[0].Error != "disk full" {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	t.Parallel()
	p := New(Config{Key: "k", Sink: &memSink{}, Log: quiet()}, strings.NewReader(""))
	if err := p.Run(context.Background()); err != nil {
		t.Errorf("Run: %v", err)
	}
}
