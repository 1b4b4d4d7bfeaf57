package output

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/xfmoulet/qoi"
	"github.com/zsiec/pgsd/render"
)

// frame returns a 2x1 frame: opaque white then transparent.
func frame() *render.Frame {
	return &render.Frame{
		Pix:    []byte{255, 255, 255, 255, 0, 0, 0, 0},
		Stride: 8,
		Rect:   image.Rect(0, 0, 2, 1),
		PTS:    90000,
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", FormatPNG, false},
		{"QOI", FormatQOI, false},
		{"jpeg", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrFormat) {
			t.Errorf("ParseFormat(%q) err = %v, want ErrFormat", tt.in, err)
		}
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()
	f := frame()
	tests := []struct {
		prefix string
		index  int
		format Format
		want   string
	}{
		{"movie", 3, FormatPNG, "movie_00003_1000.png"},
		{"", 12, FormatQOI, "pgs_00012_1000.qoi"},
		{"x", 0, "", "x_00000_1000.png"},
	}
	for _, tt := range tests {
		if got := FileName(tt.prefix, tt.index, f, tt.format); got != tt.want {
			t.Errorf("FileName(%q, %d, %q) = %q, want %q", tt.prefix, tt.index, tt.format, got, tt.want)
		}
	}
}

func TestWrite_PNG(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir()}
	path, err := w.Write("sub", 1, frame())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "sub_00001_1000.png" {
		t.Errorf("path = %s", path)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if r, g, b, a := img.At(0, 0).RGBA(); r != 0xFFFF || g != 0xFFFF || b != 0xFFFF || a != 0xFFFF {
		t.Errorf("pixel 0 = %x %x %x %x", r, g, b, a)
	}
	if _, _, _, a := img.At(1, 0).RGBA(); a != 0 {
		t.Errorf("pixel 1 alpha = %x, want 0", a)
	}
	if w.Written() != 1 {
		t.Errorf("Written = %d", w.Written())
	}
}

func TestWrite_QOI(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir(), Format: FormatQOI}
	path, err := w.Write("", 0, frame())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	img, err := qoi.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("qoi.Decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 2, 1) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0xFFFF {
		t.Errorf("pixel 0 alpha = %x", a)
	}
}

func TestWrite_Scale(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir(), Scale: 2}
	if got := w.Image(frame()).Bounds(); got.Dx() != 4 || got.Dy() != 2 {
		t.Errorf("scaled bounds = %v, want 4x2", got)
	}
	w.Scale = 0.1
	if got := w.Image(frame()).Bounds(); got.Dx() != 1 || got.Dy() != 1 {
		t.Errorf("downscaled bounds = %v, want at least 1x1", got)
	}
}

func TestWrite_Preview(t *testing.T) {
	t.Parallel()
	var term bytes.Buffer
	w := &Writer{Dir: t.TempDir(), Preview: &term}
	if _, err := w.Write("p", 0, frame()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.HasPrefix(term.Bytes(), []byte("\x1bP")) {
		t.Errorf("preview does not start a sixel sequence: %q", term.Bytes())
	}
}

func TestWrite_Errors(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir()}
	if _, err := w.Write("e", 0, &render.Frame{}); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty frame err = %v", err)
	}
	w.Format = "bmp"
	if _, err := w.Write("e", 0, frame()); !errors.Is(err, ErrFormat) {
		t.Errorf("bad format err = %v", err)
	}
	w = &Writer{Dir: filepath.Join(t.TempDir(), "missing")}
	if _, err := w.Write("e", 0, frame()); err == nil {
		t.Error("write into a missing directory succeeded")
	}
}
