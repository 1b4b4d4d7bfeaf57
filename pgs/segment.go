package pgs

import (
	"fmt"
	"strings"
)

// SegmentType is the one-byte tag that selects a segment's payload layout.
type SegmentType uint8

// Segment type tags.
const (
	SegmentPalette     SegmentType = 0x14
	SegmentObject      SegmentType = 0x15
	SegmentComposition SegmentType = 0x16
	SegmentWindow      SegmentType = 0x17
	SegmentEnd         SegmentType = 0x80
)

func (t SegmentType) String() string {
	switch t {
	case SegmentPalette:
		return "PDS"
	case SegmentObject:
		return "ODS"
	case SegmentComposition:
		return "PCS"
	case SegmentWindow:
		return "WDS"
	case SegmentEnd:
		return "END"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

// Segment is one parsed record of the stream. PTS and DTS are 90 kHz ticks.
type Segment struct {
	PTS      uint32
	DTS      uint32
	Contents Contents
}

// Type returns the tag of the segment's contents.
func (s Segment) Type() SegmentType {
	if s.Contents == nil {
		return 0
	}
	return s.Contents.Type()
}

func (s Segment) String() string {
	return fmt.Sprintf("Segment{PTS: %d, DTS: %d, %v}", s.PTS, s.DTS, s.Contents)
}

// Contents is the payload of a Segment. The set of implementations is
// closed: *PresentationComposition, *WindowDefinition, *PaletteDefinition,
// *ObjectDefinition and End.
type Contents interface {
	Type() SegmentType
	sealed()
}

// CompositionState tells the decoder how a composition relates to the
// current epoch.
type CompositionState uint8

// Composition states as encoded on the wire.
const (
	CompositionNormal           CompositionState = 0x00
	CompositionAcquisitionPoint CompositionState = 0x40
	CompositionEpochStart       CompositionState = 0x80
)

func (c CompositionState) String() string {
	switch c {
	case CompositionNormal:
		return "Normal"
	case CompositionAcquisitionPoint:
		return "AcquisitionPoint"
	case CompositionEpochStart:
		return "EpochStart"
	default:
		return fmt.Sprintf("CompositionState(0x%02X)", uint8(c))
	}
}

// PresentationComposition (PCS) opens a display set and places objects on
// screen.
type PresentationComposition struct {
	Width             uint16
	Height            uint16
	FrameRate         uint8
	CompositionNumber uint16
	CompositionState  CompositionState
	PaletteUpdate     bool
	PaletteID         uint8
	Objects           []CompositionObject
}

func (*PresentationComposition) Type() SegmentType { return SegmentComposition }
func (*PresentationComposition) sealed()           {}

func (p *PresentationComposition) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PCS{%dx%d, FrameRate: 0x%02X, Number: %d, State: %s, PaletteUpdate: %v, Palette: %d, Objects: [",
		p.Width, p.Height, p.FrameRate, p.CompositionNumber, p.CompositionState, p.PaletteUpdate, p.PaletteID)
	for i, o := range p.Objects {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(o.String())
	}
	b.WriteString("]}")
	return b.String()
}

// CompositionObject places one object definition inside a window.
type CompositionObject struct {
	ObjectID uint16
	WindowID uint8
	X        uint16
	Y        uint16
	Crop     *CropInfo
}

func (o CompositionObject) String() string {
	s := fmt.Sprintf("{Object: %d, Window: %d, At: %d,%d", o.ObjectID, o.WindowID, o.X, o.Y)
	if o.Crop != nil {
		s += fmt.Sprintf(", Crop: %d,%d %dx%d", o.Crop.X, o.Crop.Y, o.Crop.Width, o.Crop.Height)
	}
	return s + "}"
}

// CropInfo is a rectangle relative to the object's top-left corner. Only
// pixels inside it are shown.
type CropInfo struct {
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
}

// Contains reports whether the object-relative pixel (x, y) lies inside the
// crop rectangle.
func (c *CropInfo) Contains(x, y int) bool {
	return x >= int(c.X) && x < int(c.X)+int(c.Width) &&
		y >= int(c.Y) && y < int(c.Y)+int(c.Height)
}

// WindowDefinition (WDS) declares the screen regions objects are drawn in.
type WindowDefinition struct {
	Windows []Window
}

func (*WindowDefinition) Type() SegmentType { return SegmentWindow }
func (*WindowDefinition) sealed()           {}

func (w *WindowDefinition) String() string {
	parts := make([]string, len(w.Windows))
	for i, win := range w.Windows {
		parts[i] = win.String()
	}
	return "WDS{" + strings.Join(parts, ", ") + "}"
}

// Window is a named output region.
type Window struct {
	ID     uint8
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
}

func (w Window) String() string {
	return fmt.Sprintf("{Window: %d, At: %d,%d, Size: %dx%d}", w.ID, w.X, w.Y, w.Width, w.Height)
}

// PaletteDefinition (PDS) maps color indexes to YCrCb+alpha values.
type PaletteDefinition struct {
	ID      uint8
	Version uint8
	Entries map[uint8]PaletteEntry
}

func (*PaletteDefinition) Type() SegmentType { return SegmentPalette }
func (*PaletteDefinition) sealed()           {}

func (p *PaletteDefinition) String() string {
	return fmt.Sprintf("PDS{ID: %d, Version: %d, Entries: %d}", p.ID, p.Version, len(p.Entries))
}

// PaletteEntry is one palette color. Luminance and chroma follow the
// BT.709 full-range convention used by the compositor.
type PaletteEntry struct {
	ID        uint8
	Luminance uint8
	Cr        uint8
	Cb        uint8
	Alpha     uint8
}

// SequenceFlag marks an object definition's position in a fragmented
// object.
type SequenceFlag uint8

// Sequence flags as encoded on the wire.
const (
	SequenceLast         SequenceFlag = 0x40
	SequenceFirst        SequenceFlag = 0x80
	SequenceFirstAndLast SequenceFlag = 0xC0
)

func (f SequenceFlag) String() string {
	switch f {
	case SequenceLast:
		return "Last"
	case SequenceFirst:
		return "First"
	case SequenceFirstAndLast:
		return "FirstAndLast"
	default:
		return fmt.Sprintf("SequenceFlag(0x%02X)", uint8(f))
	}
}

// ObjectDefinition (ODS) carries one run-length encoded bitmap.
type ObjectDefinition struct {
	ID       uint16
	Version  uint8
	Sequence SequenceFlag
	Width    uint16
	Height   uint16
	Runs     []Run
}

func (*ObjectDefinition) Type() SegmentType { return SegmentObject }
func (*ObjectDefinition) sealed()           {}

func (o *ObjectDefinition) String() string {
	return fmt.Sprintf("ODS{ID: %d, Version: %d, Sequence: %s, Size: %dx%d, Pixels: %d}",
		o.ID, o.Version, o.Sequence, o.Width, o.Height, PixelCount(o.Runs))
}

// CheckGeometry verifies that the decoded runs cover exactly Width*Height
// pixels.
func (o *ObjectDefinition) CheckGeometry() error {
	want := int(o.Width) * int(o.Height)
	if got := PixelCount(o.Runs); got != want {
		return &GeometryError{ObjectID: o.ID, Width: o.Width, Height: o.Height, Pixels: got}
	}
	return nil
}

// End closes a display set. It carries no data.
type End struct{}

func (End) Type() SegmentType { return SegmentEnd }
func (End) sealed()           {}
func (End) String() string    { return "END" }
