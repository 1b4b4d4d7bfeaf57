package render

import (
	"image"

	"github.com/zsiec/pgsd/internal/colorspace"
	"github.com/zsiec/pgsd/pgs"
)

// PaletteID is the palette every color index resolves against.
const PaletteID = 0

// Options tunes compositing. The zero value matches Composite and Render.
type Options struct {
	// CheckWindows fails composition objects placed in windows the display
	// set does not define.
	CheckWindows bool
}

// Composite paints ds into a packed A, Y, Cb, Cr buffer of Width*Height*4
// bytes.
func Composite(ds *pgs.DisplaySet) ([]byte, error) {
	return Options{}.Composite(ds)
}

// Render composes ds and converts it to premultiplied ARGB.
func Render(ds *pgs.DisplaySet) (*Frame, error) {
	return Options{}.Render(ds)
}

// Composite paints ds into a packed A, Y, Cb, Cr buffer under o.
func (o Options) Composite(ds *pgs.DisplaySet) ([]byte, error) {
	w, h := ds.Width(), ds.Height()
	buf := make([]byte, w*h*colorspace.BytesPerPixel)
	pal, _ := ds.Palette(PaletteID)

	for _, co := range ds.Placements() {
		obj, ok := ds.Object(co.ObjectID)
		if !ok {
			return nil, &ObjectNotFoundError{ObjectID: co.ObjectID}
		}
		if o.CheckWindows {
			if _, ok := ds.Window(co.WindowID); !ok {
				return nil, &WindowNotFoundError{WindowID: co.WindowID}
			}
		}
		if err := obj.CheckGeometry(); err != nil {
			return nil, err
		}
		if err := paint(buf, w, h, co, obj, pal); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Render composes ds under o and converts it to premultiplied ARGB.
func (o Options) Render(ds *pgs.DisplaySet) (*Frame, error) {
	buf, err := o.Composite(ds)
	if err != nil {
		return nil, err
	}
	stride := ds.Width() * colorspace.BytesPerPixel
	pix, err := colorspace.ConvertAYCbCrToARGB(buf, stride, ds.Width(), ds.Height())
	if err != nil {
		return nil, &ColorConversionError{Err: err}
	}
	return &Frame{
		Pix:    pix,
		Stride: stride,
		Rect:   image.Rect(0, 0, ds.Width(), ds.Height()),
		PTS:    ds.PTS,
		DTS:    ds.DTS,
	}, nil
}

// paint walks obj's runs left to right, top to bottom, starting at the
// placement's position. Pixels outside the crop rectangle or the frame are
// skipped.
func paint(buf []byte, w, h int, co pgs.CompositionObject, obj *pgs.ObjectDefinition, pal *pgs.PaletteDefinition) error {
	ow := int(obj.Width)
	x0, y0 := int(co.X), int(co.Y)
	px, py := 0, 0

	for _, run := range obj.Runs {
		// End-of-line markers paint nothing, so their color 0 is never
		// resolved and palettes without entry 0 still render.
		if run.Length == 0 {
			continue
		}
		e, err := lookup(pal, run.Color)
		if err != nil {
			return err
		}
		for range run.Length {
			if px == ow {
				px = 0
				py++
			}
			fx, fy := x0+px, y0+py
			if (co.Crop == nil || co.Crop.Contains(px, py)) && fx < w && fy < h {
				i := (fy*w + fx) * colorspace.BytesPerPixel
				buf[i] = e.Alpha
				buf[i+1] = e.Luminance
				buf[i+2] = e.Cb
				buf[i+3] = e.Cr
			}
			px++
		}
	}
	return nil
}

func lookup(pal *pgs.PaletteDefinition, color uint8) (pgs.PaletteEntry, error) {
	if pal == nil {
		return pgs.PaletteEntry{}, &PaletteNotFoundError{PaletteID: PaletteID, EntryID: color}
	}
	e, ok := pal.Entries[color]
	if !ok {
		return pgs.PaletteEntry{}, &PaletteNotFoundError{PaletteID: pal.ID, EntryID: color}
	}
	return e, nil
}
