package pgs

import (
	"iter"
	"maps"
	"time"
)

// ClockRate is the frequency of PTS and DTS values.
const ClockRate = 90000

// DisplaySet is one complete graphics update: the composition that opened
// it plus the windows, palettes and objects in effect when its End segment
// arrived. A DisplaySet is never modified after the assembler returns it
// and may be read from several goroutines.
type DisplaySet struct {
	PTS         uint32
	DTS         uint32
	Composition *PresentationComposition

	windows  map[uint8]Window
	palettes map[uint8]*PaletteDefinition
	objects  map[uint16]*ObjectDefinition
}

// Width is the frame width declared by the composition.
func (ds *DisplaySet) Width() int { return int(ds.Composition.Width) }

// Height is the frame height declared by the composition.
func (ds *DisplaySet) Height() int { return int(ds.Composition.Height) }

// Placements returns the composition objects of this display set in draw
// order.
func (ds *DisplaySet) Placements() []CompositionObject {
	return ds.Composition.Objects
}

// Empty reports whether the display set draws nothing. Empty display sets
// clear the screen.
func (ds *DisplaySet) Empty() bool {
	return len(ds.Composition.Objects) == 0
}

// PresentationTime converts PTS to a duration from the stream origin.
func (ds *DisplaySet) PresentationTime() time.Duration {
	return ticks(ds.PTS)
}

// DecodingTime converts DTS to a duration from the stream origin.
func (ds *DisplaySet) DecodingTime() time.Duration {
	return ticks(ds.DTS)
}

func ticks(t uint32) time.Duration {
	return time.Duration(t) * time.Second / ClockRate
}

// Window returns the window with id as of this display set.
func (ds *DisplaySet) Window(id uint8) (Window, bool) {
	w, ok := ds.windows[id]
	return w, ok
}

// Palette returns the latest palette definition with id.
func (ds *DisplaySet) Palette(id uint8) (*PaletteDefinition, bool) {
	p, ok := ds.palettes[id]
	return p, ok
}

// Object returns the latest object definition with id.
func (ds *DisplaySet) Object(id uint16) (*ObjectDefinition, bool) {
	o, ok := ds.objects[id]
	return o, ok
}

// Windows iterates the windows in effect, in no particular order.
func (ds *DisplaySet) Windows() iter.Seq2[uint8, Window] {
	return maps.All(ds.windows)
}

// Palettes iterates the palettes in effect, in no particular order.
func (ds *DisplaySet) Palettes() iter.Seq2[uint8, *PaletteDefinition] {
	return maps.All(ds.palettes)
}

// Objects iterates the object definitions in effect, in no particular order.
func (ds *DisplaySet) Objects() iter.Seq2[uint16, *ObjectDefinition] {
	return maps.All(ds.objects)
}

// layer is a map shared with earlier display sets until the first write of
// the current group, which takes a private copy.
type layer[K comparable, V any] struct {
	m     map[K]V
	owned bool
}

func (l *layer[K, V]) set(k K, v V) {
	if !l.owned {
		m := make(map[K]V, len(l.m)+1)
		maps.Copy(m, l.m)
		l.m = m
		l.owned = true
	}
	l.m[k] = v
}

// freeze hands the current map out. The next set copies it again.
func (l *layer[K, V]) freeze() map[K]V {
	l.owned = false
	return l.m
}

func (l *layer[K, V]) reset() {
	l.m = nil
	l.owned = false
}
