package pgs

import "github.com/cockroachdb/errors"

const (
	magic = 0x5047 // "PG"

	paletteEntrySize = 5
	windowSize       = 9
)

// Parse decodes every segment in data. Parsing is all or nothing: the first
// structural mismatch aborts with a *ParseError carrying its offset.
func Parse(data []byte) ([]Segment, error) {
	r := newReader(data)
	// A typical display set has 4-5 segments of a few hundred bytes each.
	segments := make([]Segment, 0, len(data)/256+1)
	for !r.empty() {
		seg, err := parseSegment(r)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func parseSegment(r *reader) (Segment, error) {
	var seg Segment

	at := r.offset()
	m, err := r.u16("magic")
	if err != nil {
		return seg, err
	}
	if m != magic {
		return seg, &ParseError{Offset: at, Field: "magic", Err: errors.Wrapf(ErrBadMagic, "got 0x%04X", m)}
	}
	if seg.PTS, err = r.u32("pts"); err != nil {
		return seg, err
	}
	if seg.DTS, err = r.u32("dts"); err != nil {
		return seg, err
	}

	at = r.offset()
	tag, err := r.u8("segment type")
	if err != nil {
		return seg, err
	}

	switch SegmentType(tag) {
	case SegmentPalette:
		seg.Contents, err = parsePalette(r)
	case SegmentObject:
		seg.Contents, err = parseObject(r)
	case SegmentComposition:
		seg.Contents, err = parseComposition(r)
	case SegmentWindow:
		seg.Contents, err = parseWindows(r)
	case SegmentEnd:
		seg.Contents, err = parseEnd(r)
	default:
		return seg, &ParseError{Offset: at, Field: "segment type", Err: errors.Wrapf(ErrUnknownSegment, "tag 0x%02X", tag)}
	}
	return seg, err
}

// payload reads the u16 length prefix and returns the window it covers.
func payload(r *reader, field string) (*reader, error) {
	n, err := r.u16(field + " length")
	if err != nil {
		return nil, err
	}
	return r.sub(int(n), field)
}

func parseEnd(r *reader) (End, error) {
	at := r.offset()
	n, err := r.u16("end length")
	if err != nil {
		return End{}, err
	}
	if n != 0 {
		return End{}, &ParseError{Offset: at, Field: "end length", Err: errors.Wrapf(ErrLengthMismatch, "got %d, want 0", n)}
	}
	return End{}, nil
}

func parsePalette(r *reader) (*PaletteDefinition, error) {
	p, err := payload(r, "palette")
	if err != nil {
		return nil, err
	}
	pds := &PaletteDefinition{}
	if pds.ID, err = p.u8("palette id"); err != nil {
		return nil, err
	}
	if pds.Version, err = p.u8("palette version"); err != nil {
		return nil, err
	}
	if rem := p.remaining(); rem%paletteEntrySize != 0 {
		return nil, p.fail("palette entries", errors.Wrapf(ErrLengthMismatch,
			"%d bytes is not a whole number of %d-byte entries", rem, paletteEntrySize))
	}

	pds.Entries = make(map[uint8]PaletteEntry, p.remaining()/paletteEntrySize)
	for !p.empty() {
		e := p.bytes(paletteEntrySize)
		// Duplicate ids within a definition: the later entry wins.
		pds.Entries[e[0]] = PaletteEntry{
			ID:        e[0],
			Luminance: e[1],
			Cr:        e[2],
			Cb:        e[3],
			Alpha:     e[4],
		}
	}
	return pds, nil
}

func parseWindows(r *reader) (*WindowDefinition, error) {
	p, err := payload(r, "window")
	if err != nil {
		return nil, err
	}
	count, err := p.u8("window count")
	if err != nil {
		return nil, err
	}
	if want := int(count) * windowSize; p.remaining() != want {
		return nil, p.fail("windows", errors.Wrapf(ErrLengthMismatch,
			"%d windows need %d bytes, have %d", count, want, p.remaining()))
	}

	wds := &WindowDefinition{Windows: make([]Window, count)}
	for i := range wds.Windows {
		w := &wds.Windows[i]
		w.ID, _ = p.u8("window id")
		w.X, _ = p.u16("window x")
		w.Y, _ = p.u16("window y")
		w.Width, _ = p.u16("window width")
		w.Height, _ = p.u16("window height")
	}
	return wds, nil
}

func parseObject(r *reader) (*ObjectDefinition, error) {
	p, err := payload(r, "object")
	if err != nil {
		return nil, err
	}
	ods := &ObjectDefinition{}
	if ods.ID, err = p.u16("object id"); err != nil {
		return nil, err
	}
	if ods.Version, err = p.u8("object version"); err != nil {
		return nil, err
	}

	at := p.offset()
	seq, err := p.u8("sequence flag")
	if err != nil {
		return nil, err
	}
	switch SequenceFlag(seq) {
	case SequenceLast, SequenceFirst, SequenceFirstAndLast:
		ods.Sequence = SequenceFlag(seq)
	default:
		return nil, &ParseError{Offset: at, Field: "sequence flag", Err: errors.Wrapf(ErrInvalidFlag, "0x%02X", seq)}
	}

	n, err := p.u24("object data length")
	if err != nil {
		return nil, err
	}
	data, err := p.sub(int(n), "object data")
	if err != nil {
		return nil, err
	}
	if ods.Width, err = data.u16("object width"); err != nil {
		return nil, err
	}
	if ods.Height, err = data.u16("object height"); err != nil {
		return nil, err
	}
	if ods.Runs, err = decodeRuns(data); err != nil {
		return nil, err
	}
	if err := p.done("object"); err != nil {
		return nil, err
	}
	return ods, nil
}

func parseComposition(r *reader) (*PresentationComposition, error) {
	p, err := payload(r, "composition")
	if err != nil {
		return nil, err
	}
	pcs := &PresentationComposition{}
	if pcs.Width, err = p.u16("width"); err != nil {
		return nil, err
	}
	if pcs.Height, err = p.u16("height"); err != nil {
		return nil, err
	}
	if pcs.FrameRate, err = p.u8("frame rate"); err != nil {
		return nil, err
	}
	if pcs.CompositionNumber, err = p.u16("composition number"); err != nil {
		return nil, err
	}

	at := p.offset()
	state, err := p.u8("composition state")
	if err != nil {
		return nil, err
	}
	switch CompositionState(state) {
	case CompositionNormal, CompositionAcquisitionPoint, CompositionEpochStart:
		pcs.CompositionState = CompositionState(state)
	default:
		return nil, &ParseError{Offset: at, Field: "composition state", Err: errors.Wrapf(ErrInvalidFlag, "0x%02X", state)}
	}

	at = p.offset()
	update, err := p.u8("palette update flag")
	if err != nil {
		return nil, err
	}
	switch update {
	case 0x00:
	case 0x80:
		pcs.PaletteUpdate = true
	default:
		return nil, &ParseError{Offset: at, Field: "palette update flag", Err: errors.Wrapf(ErrInvalidFlag, "0x%02X", update)}
	}

	if pcs.PaletteID, err = p.u8("palette id"); err != nil {
		return nil, err
	}
	count, err := p.u8("object count")
	if err != nil {
		return nil, err
	}
	pcs.Objects = make([]CompositionObject, count)
	for i := range pcs.Objects {
		if err := parseCompositionObject(p, &pcs.Objects[i]); err != nil {
			return nil, err
		}
	}
	if err := p.done("composition"); err != nil {
		return nil, err
	}
	return pcs, nil
}

func parseCompositionObject(p *reader, o *CompositionObject) error {
	var err error
	if o.ObjectID, err = p.u16("object id"); err != nil {
		return err
	}
	if o.WindowID, err = p.u8("window id"); err != nil {
		return err
	}
	cropped, err := p.u8("crop flag")
	if err != nil {
		return err
	}
	if o.X, err = p.u16("object x"); err != nil {
		return err
	}
	if o.Y, err = p.u16("object y"); err != nil {
		return err
	}
	if cropped != 0x40 {
		return nil
	}

	c := &CropInfo{}
	if c.X, err = p.u16("crop x"); err != nil {
		return err
	}
	if c.Y, err = p.u16("crop y"); err != nil {
		return err
	}
	if c.Width, err = p.u16("crop width"); err != nil {
		return err
	}
	if c.Height, err = p.u16("crop height"); err != nil {
		return err
	}
	o.Crop = c
	return nil
}
