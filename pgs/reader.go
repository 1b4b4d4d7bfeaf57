package pgs

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// reader is a big-endian cursor over a window of the input buffer. base is
// the absolute offset of data[0] so errors can point into the original
// buffer.
type reader struct {
	data    []byte
	pos     int
	base    int
	bounded bool
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) offset() int {
	return r.base + r.pos
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) empty() bool {
	return r.pos >= len(r.data)
}

func (r *reader) fail(field string, err error) error {
	return &ParseError{Offset: r.offset(), Field: field, Err: err}
}

func (r *reader) need(n int, field string) error {
	if r.remaining() >= n {
		return nil
	}
	// Inside a length-prefixed window a short read means the fields overran
	// the declared length.
	cause := ErrTruncated
	if r.bounded {
		cause = ErrLengthMismatch
	}
	return r.fail(field, errors.Wrapf(cause, "need %d bytes, have %d", n, r.remaining()))
}

func (r *reader) u8(field string) (uint8, error) {
	if err := r.need(1, field); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16(field string) (uint16, error) {
	if err := r.need(2, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u24(field string) (uint32, error) {
	if err := r.need(3, field); err != nil {
		return 0, err
	}
	b := r.data[r.pos:]
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	r.pos += 3
	return v, nil
}

func (r *reader) u32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// sub splits off the next n bytes as their own reader. Declared lengths that
// run past the end of the current window are a length mismatch.
func (r *reader) sub(n int, field string) (*reader, error) {
	if r.remaining() < n {
		return nil, r.fail(field, errors.Wrapf(ErrLengthMismatch,
			"declared %d bytes, only %d available", n, r.remaining()))
	}
	s := &reader{data: r.data[r.pos : r.pos+n], base: r.offset(), bounded: true}
	r.pos += n
	return s, nil
}

// done fails when a length-prefixed window still has unread bytes.
func (r *reader) done(field string) error {
	if !r.empty() {
		return r.fail(field, errors.Wrapf(ErrLengthMismatch, "%d trailing bytes", r.remaining()))
	}
	return nil
}

// bytes returns the next n bytes without copying. Callers check remaining
// first.
func (r *reader) bytes(n int) []byte {
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}
