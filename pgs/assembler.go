package pgs

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Assembler groups segments into display sets. A group opens with a
// composition segment, collects definitions sharing its timestamps and
// closes at End. Windows, palettes and objects carry across groups until a
// composition declares a new epoch.
//
// An Assembler is not safe for concurrent use. The first protocol
// violation is sticky: every later call returns it.
type Assembler struct {
	windows  layer[uint8, Window]
	palettes layer[uint8, *PaletteDefinition]
	objects  layer[uint16, *ObjectDefinition]

	group *DisplaySet // nil while awaiting a composition
	seen  int
	err   error
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Pending reports whether a display set has been opened but not closed.
func (a *Assembler) Pending() bool {
	return a.group != nil
}

// Push feeds the next segment. It returns a display set when seg is the End
// that completes one, and nil otherwise.
func (a *Assembler) Push(seg Segment) (*DisplaySet, error) {
	if a.err != nil {
		return nil, a.err
	}
	idx := a.seen
	a.seen++

	ds, err := a.push(seg)
	if err != nil {
		a.err = &ProtocolError{Segment: idx, Err: err}
		a.group = nil
		return nil, a.err
	}
	return ds, nil
}

func (a *Assembler) push(seg Segment) (*DisplaySet, error) {
	if a.group == nil {
		pcs, ok := seg.Contents.(*PresentationComposition)
		if !ok {
			return nil, errors.Wrapf(ErrOrphanSegment, "%s before any composition", seg.Type())
		}
		if pcs.CompositionState == CompositionEpochStart {
			a.windows.reset()
			a.palettes.reset()
			a.objects.reset()
		}
		a.group = &DisplaySet{PTS: seg.PTS, DTS: seg.DTS, Composition: pcs}
		return nil, nil
	}

	if seg.PTS != a.group.PTS || seg.DTS != a.group.DTS {
		return nil, errors.Wrapf(ErrTimestampMismatch, "%s at pts=%d dts=%d, display set at pts=%d dts=%d",
			seg.Type(), seg.PTS, seg.DTS, a.group.PTS, a.group.DTS)
	}

	switch c := seg.Contents.(type) {
	case *PresentationComposition:
		return nil, errors.Wrapf(ErrUnexpectedComposition, "composition %d", c.CompositionNumber)
	case *WindowDefinition:
		for _, w := range c.Windows {
			a.windows.set(w.ID, w)
		}
	case *PaletteDefinition:
		a.palettes.set(c.ID, c)
	case *ObjectDefinition:
		a.objects.set(c.ID, c)
	case End:
		ds := a.group
		ds.windows = a.windows.freeze()
		ds.palettes = a.palettes.freeze()
		ds.objects = a.objects.freeze()
		a.group = nil
		return ds, nil
	default:
		return nil, errors.Newf("pgs: unsupported segment contents %T", seg.Contents)
	}
	return nil, nil
}

// Finish reports an error if the input ended inside a display set.
func (a *Assembler) Finish() error {
	if a.err != nil {
		return a.err
	}
	if a.group != nil {
		a.err = &ProtocolError{
			Segment: a.seen,
			Err:     errors.Wrapf(ErrIncompleteDisplaySet, "composition %d at pts=%d", a.group.Composition.CompositionNumber, a.group.PTS),
		}
		a.group = nil
		return a.err
	}
	return nil
}

// DisplaySets walks segs and yields each completed display set in order. A
// protocol violation is yielded once as a *ProtocolError and ends the walk.
func DisplaySets(segs []Segment) iter.Seq2[*DisplaySet, error] {
	return func(yield func(*DisplaySet, error) bool) {
		a := NewAssembler()
		for _, seg := range segs {
			ds, err := a.Push(seg)
			if err != nil {
				yield(nil, err)
				return
			}
			if ds != nil && !yield(ds, nil) {
				return
			}
		}
		if err := a.Finish(); err != nil {
			yield(nil, err)
		}
	}
}
