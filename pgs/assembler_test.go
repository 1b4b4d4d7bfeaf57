package pgs

import (
	"errors"
	"testing"
	"time"

	"github.com/zsiec/pgsd/internal/pgstest"
)

func mustParse(t *testing.T, s *pgstest.Stream) []Segment {
	t.Helper()
	segs, err := Parse(s.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return segs
}

func collect(segs []Segment) ([]*DisplaySet, error) {
	var out []*DisplaySet
	for ds, err := range DisplaySets(segs) {
		if err != nil {
			return out, err
		}
		out = append(out, ds)
	}
	return out, nil
}

func TestDisplaySets_EndToEnd(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	s.PCS(pgstest.Composition{Width: 2, Height: 1})
	s.END()

	sets, err := collect(mustParse(t, &s))
	if err != nil {
		t.Fatalf("DisplaySets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d display sets, want 1", len(sets))
	}
	ds := sets[0]
	if ds.Width() != 2 || ds.Height() != 1 || !ds.Empty() || len(ds.Placements()) != 0 {
		t.Errorf("display set = %dx%d, %d placements", ds.Width(), ds.Height(), len(ds.Placements()))
	}
}

func TestDisplaySets_CarriedState(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	s.At(1000, 900)
	s.PCS(pgstest.Composition{Width: 8, Height: 8, State: pgstest.EpochStart, Objects: []pgstest.Object{{ID: 1}}})
	s.WDS(pgstest.Window{ID: 0, Width: 8, Height: 8})
	s.PDS(0, 0, pgstest.Entry{ID: 1, Y: 16, A: 255})
	s.ODS(1, 0, 0xC0, 2, 1, pgstest.Fill(2, 1, 1))
	s.END()
	// A normal composition reuses everything from the first set and
	// replaces the palette.
	s.At(2000, 1900)
	s.PCS(pgstest.Composition{Width: 8, Height: 8, Number: 1, Objects: []pgstest.Object{{ID: 1}}})
	s.PDS(0, 1, pgstest.Entry{ID: 1, Y: 235, A: 255})
	s.END()

	sets, err := collect(mustParse(t, &s))
	if err != nil {
		t.Fatalf("DisplaySets: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d display sets, want 2", len(sets))
	}
	first, second := sets[0], sets[1]

	if first.PTS != 1000 || first.DTS != 900 || second.PTS != 2000 {
		t.Errorf("timestamps = %d/%d, %d", first.PTS, first.DTS, second.PTS)
	}
	if _, ok := second.Window(0); !ok {
		t.Error("window 0 not carried into second display set")
	}
	o1, ok1 := first.Object(1)
	o2, ok2 := second.Object(1)
	if !ok1 || !ok2 || o1 != o2 {
		t.Error("object 1 not shared between display sets")
	}
	p1, _ := first.Palette(0)
	p2, _ := second.Palette(0)
	if p1.Version != 0 || p2.Version != 1 {
		t.Errorf("palette versions = %d, %d; earlier set must keep its palette", p1.Version, p2.Version)
	}
}

func TestDisplaySets_EpochReset(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	s.PCS(pgstest.Composition{Width: 4, Height: 4, State: pgstest.EpochStart})
	s.PDS(0, 0, pgstest.Entry{ID: 1, A: 255})
	s.ODS(1, 0, 0xC0, 1, 1, []byte{0x01})
	s.WDS(pgstest.Window{ID: 0, Width: 4, Height: 4})
	s.END()
	s.At(3000, 3000)
	s.PCS(pgstest.Composition{Width: 4, Height: 4, State: pgstest.EpochStart, Objects: []pgstest.Object{{ID: 1}}})
	s.END()

	sets, err := collect(mustParse(t, &s))
	if err != nil {
		t.Fatalf("DisplaySets: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d display sets, want 2", len(sets))
	}
	if _, ok := sets[0].Object(1); !ok {
		t.Error("first epoch lost object 1")
	}
	second := sets[1]
	if _, ok := second.Object(1); ok {
		t.Error("object 1 survived an epoch start")
	}
	if _, ok := second.Palette(0); ok {
		t.Error("palette 0 survived an epoch start")
	}
	if _, ok := second.Window(0); ok {
		t.Error("window 0 survived an epoch start")
	}
	n := 0
	for range second.Objects() {
		n++
	}
	if n != 0 {
		t.Errorf("second epoch iterates %d objects, want 0", n)
	}
}

func TestDisplaySets_WindowsMergeByID(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	s.PCS(pgstest.Composition{Width: 4, Height: 4, State: pgstest.EpochStart})
	s.WDS(pgstest.Window{ID: 0, Width: 1, Height: 1}, pgstest.Window{ID: 1, Width: 2, Height: 2})
	s.WDS(pgstest.Window{ID: 1, Width: 3, Height: 3})
	s.END()

	sets, err := collect(mustParse(t, &s))
	if err != nil {
		t.Fatalf("DisplaySets: %v", err)
	}
	got := map[uint8]Window{}
	for id, w := range sets[0].Windows() {
		got[id] = w
	}
	if len(got) != 2 || got[0].Width != 1 || got[1].Width != 3 {
		t.Errorf("windows = %v", got)
	}
}

func TestDisplaySets_ProtocolErrors(t *testing.T) {
	t.Parallel()
	pcs := pgstest.Composition{Width: 1, Height: 1}
	tests := []struct {
		name    string
		build   func(s *pgstest.Stream)
		want    error
		segment int
		sets    int
	}{
		{
			name: "timestamp mismatch",
			build: func(s *pgstest.Stream) {
				s.PCS(pcs)
				s.At(1, 0).PDS(0, 0)
				s.END()
			},
			want: ErrTimestampMismatch, segment: 1,
		},
		{
			name: "dts mismatch",
			build: func(s *pgstest.Stream) {
				s.At(5, 5).PCS(pcs)
				s.At(5, 4).END()
			},
			want: ErrTimestampMismatch, segment: 1,
		},
		{
			name: "second composition",
			build: func(s *pgstest.Stream) {
				s.PCS(pcs)
				s.PCS(pcs)
				s.END()
			},
			want: ErrUnexpectedComposition, segment: 1,
		},
		{
			name: "incomplete",
			build: func(s *pgstest.Stream) {
				s.PCS(pcs)
				s.END()
				s.PCS(pcs)
				s.PDS(0, 0)
			},
			want: ErrIncompleteDisplaySet, segment: 4, sets: 1,
		},
		{
			name: "orphan",
			build: func(s *pgstest.Stream) {
				s.PDS(0, 0)
			},
			want: ErrOrphanSegment, segment: 0,
		},
		{
			name: "end without composition",
			build: func(s *pgstest.Stream) {
				s.PCS(pcs)
				s.END()
				s.END()
			},
			want: ErrOrphanSegment, segment: 2, sets: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var s pgstest.Stream
			tt.build(&s)
			sets, err := collect(mustParse(t, &s))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %T, want *ProtocolError", err)
			}
			if pe.Segment != tt.segment {
				t.Errorf("Segment = %d, want %d", pe.Segment, tt.segment)
			}
			if len(sets) != tt.sets {
				t.Errorf("yielded %d display sets before the error, want %d", len(sets), tt.sets)
			}
		})
	}
}

func TestDisplaySets_EmptyInput(t *testing.T) {
	t.Parallel()
	for ds, err := range DisplaySets(nil) {
		t.Fatalf("unexpected yield %v, %v", ds, err)
	}
}

func TestDisplaySets_StopEarly(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	for i := range 3 {
		s.At(uint32(i), 0).PCS(pgstest.Composition{Width: 1, Height: 1})
		s.END()
	}
	n := 0
	for _, err := range DisplaySets(mustParse(t, &s)) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d, want 2", n)
	}
}

func TestAssembler_Sticky(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	s.PDS(0, 0)
	s.PCS(pgstest.Composition{Width: 1, Height: 1})
	segs := mustParse(t, &s)

	a := NewAssembler()
	_, err := a.Push(segs[0])
	if !errors.Is(err, ErrOrphanSegment) {
		t.Fatalf("first push: %v", err)
	}
	if _, err2 := a.Push(segs[1]); err2 != err {
		t.Errorf("second push = %v, want the sticky %v", err2, err)
	}
	if a.Pending() {
		t.Error("Pending after failure")
	}
	if err2 := a.Finish(); err2 != err {
		t.Errorf("Finish = %v, want the sticky %v", err2, err)
	}
}

func TestAssembler_Pending(t *testing.T) {
	t.Parallel()
	var s pgstest.Stream
	s.PCS(pgstest.Composition{Width: 1, Height: 1})
	s.END()
	segs := mustParse(t, &s)

	a := NewAssembler()
	if ds, err := a.Push(segs[0]); ds != nil || err != nil {
		t.Fatalf("Push(PCS) = %v, %v", ds, err)
	}
	if !a.Pending() {
		t.Error("not pending after composition")
	}
	ds, err := a.Push(segs[1])
	if err != nil || ds == nil {
		t.Fatalf("Push(END) = %v, %v", ds, err)
	}
	if a.Pending() {
		t.Error("pending after end")
	}
	if err := a.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestDisplaySet_Times(t *testing.T) {
	t.Parallel()
	ds := &DisplaySet{PTS: 90000 * 61, DTS: 45}
	if got := ds.PresentationTime(); got != 61*time.Second {
		t.Errorf("PresentationTime = %v", got)
	}
	if got := ds.DecodingTime(); got != 500*time.Microsecond {
		t.Errorf("DecodingTime = %v", got)
	}
}

func BenchmarkDisplaySets(b *testing.B) {
	var s pgstest.Stream
	for i := range 100 {
		s.At(uint32(i)*3000, 0)
		s.PCS(pgstest.Composition{Width: 1920, Height: 1080, Objects: []pgstest.Object{{ID: 0}}})
		s.PDS(0, 0, pgstest.Entry{ID: 1, Y: 235, Cr: 128, Cb: 128, A: 255})
		s.ODS(0, 0, 0xC0, 400, 60, pgstest.Fill(400, 60, 1))
		s.END()
	}
	segs, err := Parse(s.Bytes())
	if err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		for _, err := range DisplaySets(segs) {
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}
