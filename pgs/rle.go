package pgs

import "github.com/cockroachdb/errors"

// Run is a horizontal span of Length pixels painted with palette index
// Color. A zero-length run marks the end of a scanline.
type Run struct {
	Length uint16
	Color  uint8
}

// PixelCount returns the number of pixels covered by runs.
func PixelCount(runs []Run) int {
	n := 0
	for _, r := range runs {
		n += int(r.Length)
	}
	return n
}

// DecodeRuns decodes an object's run-length encoded bitmap.
//
//	CCCCCCCC                            1 pixel of color C
//	00000000 00LLLLLL                   L pixels of color 0
//	00000000 01LLLLLL LLLLLLLL          L pixels of color 0
//	00000000 10LLLLLL CCCCCCCC          L pixels of color C
//	00000000 11LLLLLL LLLLLLLL CCCCCCCC L pixels of color C
//	00000000 00000000                   end of line
func DecodeRuns(data []byte) ([]Run, error) {
	runs, err := decodeRuns(newReader(data))
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func decodeRuns(r *reader) ([]Run, error) {
	// Runs fill the rest of the window: running short truncates the bitmap
	// rather than overrunning a declared length.
	r.bounded = false
	// Most runs encode in two bytes; start there to avoid regrowing.
	runs := make([]Run, 0, r.remaining()/2)
	for !r.empty() {
		start := r.offset()
		lead, _ := r.u8("run")
		if lead != 0 {
			runs = append(runs, Run{Length: 1, Color: lead})
			continue
		}

		flags, err := r.u8("run flags")
		if err != nil {
			return nil, runError(start, err)
		}
		length := uint16(flags & 0x3F)

		switch flags >> 6 {
		case 0b00:
			runs = append(runs, Run{Length: length})
		case 0b01:
			lo, err := r.u8("run length")
			if err != nil {
				return nil, runError(start, err)
			}
			runs = append(runs, Run{Length: length<<8 | uint16(lo)})
		case 0b10:
			color, err := r.u8("run color")
			if err != nil {
				return nil, runError(start, err)
			}
			runs = append(runs, Run{Length: length, Color: color})
		case 0b11:
			lo, err := r.u8("run length")
			if err != nil {
				return nil, runError(start, err)
			}
			color, err := r.u8("run color")
			if err != nil {
				return nil, runError(start, err)
			}
			runs = append(runs, Run{Length: length<<8 | uint16(lo), Color: color})
		}
	}
	return runs, nil
}

// runError points a truncated run at the byte that started it, keeping the
// field that ran out.
func runError(start int, err error) error {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return err
	}
	return &ParseError{Offset: start, Field: pe.Field, Err: pe.Err}
}
