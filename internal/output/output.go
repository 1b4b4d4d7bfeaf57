// Package output writes rendered frames to disk as PNG or QOI images and
// optionally previews them on a sixel capable terminal.
package output

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/gift"
	"github.com/mattn/go-sixel"
	"github.com/xfmoulet/qoi"
	"github.com/zsiec/pgsd/render"
)

// Format is an image file format.
type Format string

const (
	FormatPNG Format = "png"
	FormatQOI Format = "qoi"
)

// DefaultPrefix names files when the caller passes no prefix.
const DefaultPrefix = "pgs"

var (
	ErrFormat     = errors.New("output: unsupported format")
	ErrEmptyFrame = errors.New("output: frame has no pixels")
)

// ParseFormat accepts "png" or "qoi", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPNG, FormatQOI:
		return f, nil
	}
	return "", errors.Wrapf(ErrFormat, "%q", s)
}

// Writer writes frames into Dir. The zero Format means PNG. A Scale of 0 or
// 1 keeps the frame size. It is safe for concurrent use.
type Writer struct {
	Dir     string
	Format  Format
	Scale   float64
	Preview io.Writer // sixel output, nil disables preview

	previewMu sync.Mutex
	written   atomic.Int64
}

// FileName returns "<prefix>_<index>_<pts-ms>.<format>".
func FileName(prefix string, index int, f *render.Frame, format Format) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if format == "" {
		format = FormatPNG
	}
	return fmt.Sprintf("%s_%05d_%d.%s", prefix, index, f.PresentationTime().Milliseconds(), format)
}

// Written returns the number of files written so far.
func (w *Writer) Written() int64 { return w.written.Load() }

// Write encodes f to Dir and returns the file path.
func (w *Writer) Write(prefix string, index int, f *render.Frame) (string, error) {
	if f.Rect.Empty() {
		return "", ErrEmptyFrame
	}
	img := w.Image(f)

	path := filepath.Join(w.Dir, FileName(prefix, index, f, w.Format))
	if err := writeFile(path, img, w.Format); err != nil {
		return "", err
	}
	w.written.Add(1)

	if w.Preview != nil {
		w.previewMu.Lock()
		err := Sixel(w.Preview, img)
		w.previewMu.Unlock()
		if err != nil {
			return path, err
		}
	}
	return path, nil
}

// Image converts f to an image, scaled by w.Scale.
func (w *Writer) Image(f *render.Frame) image.Image {
	img := f.ToRGBA()
	if w.Scale <= 0 || w.Scale == 1 {
		return img
	}
	dw := max(1, int(math.Round(float64(f.Rect.Dx())*w.Scale)))
	dh := max(1, int(math.Round(float64(f.Rect.Dy())*w.Scale)))
	g := gift.New(gift.Resize(dw, dh, gift.LanczosResampling))
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

func writeFile(path string, img image.Image, format Format) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "output: create")
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "output: close")
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	bw := bufio.NewWriter(file)
	if err := Encode(bw, img, format); err != nil {
		return err
	}
	return errors.Wrap(bw.Flush(), "output: flush")
}

// Encode writes img to dst in the given format.
func Encode(dst io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG, "":
		err = png.Encode(dst, img)
	case FormatQOI:
		err = qoi.Encode(dst, img)
	default:
		return errors.Wrapf(ErrFormat, "%q", format)
	}
	return errors.Wrapf(err, "output: encode %s", format)
}

// Sixel writes img to dst as a sixel escape sequence.
func Sixel(dst io.Writer, img image.Image) error {
	enc := sixel.NewEncoder(dst)
	return errors.Wrap(enc.Encode(img), "output: sixel")
}
