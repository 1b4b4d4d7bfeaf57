package colorspace

import (
	"bytes"
	"errors"
	"testing"
)

func TestPixel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		a, y, cb, cr uint8
		r, g, b      uint8
	}{
		{"transparent", 0, 235, 90, 200, 0, 0, 0},
		{"black", 255, 0, 128, 128, 0, 0, 0},
		{"white", 255, 255, 128, 128, 255, 255, 255},
		{"grey", 255, 235, 128, 128, 235, 235, 235},
		{"tinted", 255, 100, 148, 118, 84, 101, 137},
		{"red clamps", 255, 128, 128, 255, 255, 69, 128},
		{"half alpha premultiplies", 128, 235, 128, 128, 118, 118, 118},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, g, b := Pixel(tt.a, tt.y, tt.cb, tt.cr)
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("Pixel(%d, %d, %d, %d) = %d,%d,%d, want %d,%d,%d",
					tt.a, tt.y, tt.cb, tt.cr, r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()
	src := []byte{
		255, 235, 128, 128, 0, 50, 60, 70,
		128, 235, 128, 128, 255, 0, 128, 128,
	}
	got, err := ConvertAYCbCrToARGB(src, 8, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		255, 235, 235, 235, 0, 0, 0, 0,
		128, 118, 118, 118, 255, 0, 0, 0,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X\nwant % X", got, want)
	}
	if src[1] != 235 {
		t.Error("source buffer modified")
	}
}

func TestConvert_StridePadding(t *testing.T) {
	t.Parallel()
	src := []byte{
		255, 0, 128, 128, 0xAA, 0xBB,
		255, 255, 128, 128,
	}
	got, err := ConvertAYCbCrToARGB(src, 6, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{255, 0, 0, 0, 0xAA, 0xBB, 255, 255, 255, 255}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestConvert_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		n, stride, w, h int
		want            error
	}{
		{"negative width", 16, 16, -1, 1, ErrDimensions},
		{"negative height", 16, 16, 4, -1, ErrDimensions},
		{"short stride", 16, 12, 4, 1, ErrStride},
		{"short buffer", 15, 8, 2, 2, ErrShortInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ConvertAYCbCrToARGB(make([]byte, tt.n), tt.stride, tt.w, tt.h)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConvert_Empty(t *testing.T) {
	t.Parallel()
	got, err := ConvertAYCbCrToARGB(nil, 0, 0, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func BenchmarkConvert1080p(b *testing.B) {
	const w, h = 1920, 1080
	src := make([]byte, w*h*BytesPerPixel)
	for i := 0; i < len(src); i += 4 {
		src[i], src[i+1], src[i+2], src[i+3] = 255, byte(i), 128, 128
	}
	b.SetBytes(int64(len(src)))
	for b.Loop() {
		if _, err := ConvertAYCbCrToARGB(src, w*BytesPerPixel, w, h); err != nil {
			b.Fatal(err)
		}
	}
}
