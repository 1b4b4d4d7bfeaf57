// Package pgstest builds PGS byte streams for tests.
package pgstest

import "encoding/binary"

// Segment type tags.
const (
	PDS = 0x14
	ODS = 0x15
	PCS = 0x16
	WDS = 0x17
	END = 0x80
)

// Composition states.
const (
	Normal           = 0x00
	AcquisitionPoint = 0x40
	EpochStart       = 0x80
)

// Stream accumulates segments sharing a running timestamp pair.
type Stream struct {
	buf      []byte
	PTS, DTS uint32
}

// At sets the timestamps used for the following segments.
func (s *Stream) At(pts, dts uint32) *Stream {
	s.PTS, s.DTS = pts, dts
	return s
}

// Bytes returns everything written so far.
func (s *Stream) Bytes() []byte { return s.buf }

// Raw appends a segment with an arbitrary tag and body.
func (s *Stream) Raw(tag byte, body []byte) *Stream {
	s.buf = append(s.buf, Segment(s.PTS, s.DTS, tag, body)...)
	return s
}

// Object places an object on screen. A nil crop means uncropped.
type Object struct {
	ID     uint16
	Window uint8
	X, Y   uint16
	Crop   *[4]uint16 // x, y, width, height
}

// Composition describes a PCS body.
type Composition struct {
	Width, Height uint16
	FrameRate     uint8
	Number        uint16
	State         uint8
	PaletteUpdate bool
	PaletteID     uint8
	Objects       []Object
}

func (s *Stream) PCS(c Composition) *Stream { return s.Raw(PCS, PCSBody(c)) }

// Window is one WDS record.
type Window struct {
	ID                  uint8
	X, Y, Width, Height uint16
}

func (s *Stream) WDS(ws ...Window) *Stream { return s.Raw(WDS, WDSBody(ws...)) }

// Entry is one palette entry in wire order.
type Entry struct {
	ID, Y, Cr, Cb, A uint8
}

func (s *Stream) PDS(id, version uint8, es ...Entry) *Stream {
	return s.Raw(PDS, PDSBody(id, version, es...))
}

func (s *Stream) ODS(id uint16, version, seq uint8, w, h uint16, rle []byte) *Stream {
	return s.Raw(ODS, ODSBody(id, version, seq, w, h, rle))
}

func (s *Stream) END() *Stream { return s.Raw(END, nil) }

// Segment frames body as a complete segment: magic, timestamps, tag and
// length prefix.
func Segment(pts, dts uint32, tag byte, body []byte) []byte {
	b := make([]byte, 0, 13+len(body))
	b = append(b, 'P', 'G')
	b = binary.BigEndian.AppendUint32(b, pts)
	b = binary.BigEndian.AppendUint32(b, dts)
	b = append(b, tag)
	b = binary.BigEndian.AppendUint16(b, uint16(len(body)))
	return append(b, body...)
}

func PCSBody(c Composition) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint16(b, c.Width)
	b = binary.BigEndian.AppendUint16(b, c.Height)
	b = append(b, c.FrameRate)
	b = binary.BigEndian.AppendUint16(b, c.Number)
	b = append(b, c.State)
	if c.PaletteUpdate {
		b = append(b, 0x80)
	} else {
		b = append(b, 0x00)
	}
	b = append(b, c.PaletteID, uint8(len(c.Objects)))
	for _, o := range c.Objects {
		b = binary.BigEndian.AppendUint16(b, o.ID)
		b = append(b, o.Window)
		if o.Crop != nil {
			b = append(b, 0x40)
		} else {
			b = append(b, 0x00)
		}
		b = binary.BigEndian.AppendUint16(b, o.X)
		b = binary.BigEndian.AppendUint16(b, o.Y)
		if o.Crop != nil {
			for _, v := range o.Crop {
				b = binary.BigEndian.AppendUint16(b, v)
			}
		}
	}
	return b
}

func WDSBody(ws ...Window) []byte {
	b := []byte{uint8(len(ws))}
	for _, w := range ws {
		b = append(b, w.ID)
		b = binary.BigEndian.AppendUint16(b, w.X)
		b = binary.BigEndian.AppendUint16(b, w.Y)
		b = binary.BigEndian.AppendUint16(b, w.Width)
		b = binary.BigEndian.AppendUint16(b, w.Height)
	}
	return b
}

func PDSBody(id, version uint8, es ...Entry) []byte {
	b := []byte{id, version}
	for _, e := range es {
		b = append(b, e.ID, e.Y, e.Cr, e.Cb, e.A)
	}
	return b
}

// ODSBody builds an object body. The inner length covers width, height and
// the run-length data.
func ODSBody(id uint16, version, seq uint8, w, h uint16, rle []byte) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint16(b, id)
	b = append(b, version, seq)
	n := 4 + len(rle)
	b = append(b, byte(n>>16), byte(n>>8), byte(n))
	b = binary.BigEndian.AppendUint16(b, w)
	b = binary.BigEndian.AppendUint16(b, h)
	return append(b, rle...)
}

// Fill returns run-length data painting a w x h object with one color, one
// run per line followed by an end-of-line marker.
func Fill(w, h uint16, color uint8) []byte {
	var b []byte
	for range h {
		switch {
		case color == 0 && w < 64:
			b = append(b, 0x00, byte(w))
		case color == 0:
			b = append(b, 0x00, 0x40|byte(w>>8), byte(w))
		case w < 64:
			b = append(b, 0x00, 0x80|byte(w), color)
		default:
			b = append(b, 0x00, 0xC0|byte(w>>8), byte(w), color)
		}
		b = append(b, 0x00, 0x00)
	}
	return b
}
