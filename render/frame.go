package render

import (
	"image"
	"image/color"
	"time"

	"github.com/zsiec/pgsd/pgs"
)

// Frame is a rendered display set. Pix holds premultiplied A, R, G, B
// pixels, Stride bytes per row.
type Frame struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle

	PTS uint32
	DTS uint32
}

// ColorModel reports RGBA; At unpacks the ARGB bytes into color.RGBA.
func (f *Frame) ColorModel() color.Model { return color.RGBAModel }

// Bounds returns the frame rectangle, origin at the screen's top left.
func (f *Frame) Bounds() image.Rectangle { return f.Rect }

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) color.Color { return f.RGBAAt(x, y) }

// PixOffset returns the index of the first byte of pixel (x, y) in Pix.
func (f *Frame) PixOffset(x, y int) int {
	return (y-f.Rect.Min.Y)*f.Stride + (x-f.Rect.Min.X)*4
}

// RGBAAt returns the premultiplied pixel at (x, y), or transparent black
// outside Rect.
func (f *Frame) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(f.Rect)) {
		return color.RGBA{}
	}
	i := f.PixOffset(x, y)
	p := f.Pix[i : i+4 : i+4]
	return color.RGBA{R: p[1], G: p[2], B: p[3], A: p[0]}
}

// Blank reports whether every pixel is fully transparent.
func (f *Frame) Blank() bool {
	for i := 0; i < len(f.Pix); i += 4 {
		if f.Pix[i] != 0 {
			return false
		}
	}
	return true
}

// ToRGBA copies the frame into an *image.RGBA for encoders that special
// case it.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(f.Rect)
	w, h := f.Rect.Dx(), f.Rect.Dy()
	for y := range h {
		src := f.Pix[y*f.Stride : y*f.Stride+w*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(src); i += 4 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+1], src[i+2], src[i+3], src[i]
		}
	}
	return img
}

// PresentationTime converts PTS to a duration from the stream origin.
func (f *Frame) PresentationTime() time.Duration {
	return time.Duration(f.PTS) * time.Second / pgs.ClockRate
}
