// Package colorspace converts packed alpha+YCbCr pixels to premultiplied
// alpha+RGB using the BT.709 full-range matrix.
package colorspace

import "github.com/cockroachdb/errors"

// BytesPerPixel is the size of one packed pixel in both layouts.
const BytesPerPixel = 4

var (
	ErrDimensions = errors.New("colorspace: invalid dimensions")
	ErrStride     = errors.New("colorspace: stride shorter than a row")
	ErrShortInput = errors.New("colorspace: buffer shorter than stride*height")
)

// BT.709 coefficients in 16.16 fixed point.
const (
	crToR = 103207 // 1.5748
	cbToG = 12275  // 0.1873
	crToG = 30677  // 0.4681
	cbToB = 121609 // 1.8556

	half = 1 << 15
)

// ConvertAYCbCrToARGB converts a buffer of A, Y, Cb, Cr pixels into A, R,
// G, B pixels with color premultiplied by alpha. stride is the distance in
// bytes between rows. The result has the same length and layout as src;
// padding between rows is copied through untouched.
func ConvertAYCbCrToARGB(src []byte, stride, width, height int) ([]byte, error) {
	if width < 0 || height < 0 {
		return nil, errors.Wrapf(ErrDimensions, "%dx%d", width, height)
	}
	if stride < width*BytesPerPixel {
		return nil, errors.Wrapf(ErrStride, "stride %d for width %d", stride, width)
	}
	if height > 0 && len(src) < stride*(height-1)+width*BytesPerPixel {
		return nil, errors.Wrapf(ErrShortInput, "have %d bytes for %dx%d stride %d", len(src), width, height, stride)
	}

	dst := make([]byte, len(src))
	copy(dst, src)
	for y := range height {
		row := dst[y*stride : y*stride+width*BytesPerPixel]
		for i := 0; i < len(row); i += BytesPerPixel {
			p := row[i : i+BytesPerPixel : i+BytesPerPixel]
			p[1], p[2], p[3] = Pixel(p[0], p[1], p[2], p[3])
		}
	}
	return dst, nil
}

// Pixel converts one full-range Y, Cb, Cr triple to R, G, B premultiplied by
// a.
func Pixel(a, y, cb, cr uint8) (r, g, b uint8) {
	if a == 0 {
		return 0, 0, 0
	}
	yy := int32(y) << 16
	cbb := int32(cb) - 128
	crr := int32(cr) - 128

	r = clamp((yy + crToR*crr + half) >> 16)
	g = clamp((yy - cbToG*cbb - crToG*crr + half) >> 16)
	b = clamp((yy + cbToB*cbb + half) >> 16)
	if a == 0xFF {
		return r, g, b
	}
	return premul(r, a), premul(g, a), premul(b, a)
}

func clamp(v int32) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func premul(c, a uint8) uint8 {
	return uint8((uint32(c)*uint32(a) + 127) / 255)
}
