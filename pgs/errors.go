package pgs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors wrapped by ParseError. Use errors.Is to tell them apart.
var (
	ErrBadMagic       = errors.New("pgs: bad magic")
	ErrUnknownSegment = errors.New("pgs: unknown segment type")
	ErrInvalidFlag    = errors.New("pgs: invalid flag value")
	ErrLengthMismatch = errors.New("pgs: length mismatch")
	ErrTruncated      = errors.New("pgs: truncated data")
)

// Sentinel errors wrapped by ProtocolError.
var (
	ErrTimestampMismatch     = errors.New("pgs: timestamp mismatch inside display set")
	ErrUnexpectedComposition = errors.New("pgs: composition segment inside display set")
	ErrIncompleteDisplaySet  = errors.New("pgs: display set not terminated by end segment")
	ErrOrphanSegment         = errors.New("pgs: segment outside of a display set")
)

// ParseError reports the first structural mismatch found while parsing.
// Offset is the absolute byte position of the offending field.
type ParseError struct {
	Offset int
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pgs: parse %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a segment sequence that cannot form valid display
// sets. Segment is the index of the offending segment in the walk, or the
// number of segments seen when the input ended early.
type ProtocolError struct {
	Segment int
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("pgs: protocol violation at segment %d: %v", e.Segment, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// GeometryError reports an object whose runs do not cover exactly
// Width*Height pixels.
type GeometryError struct {
	ObjectID uint16
	Width    uint16
	Height   uint16
	Pixels   int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("pgs: object %d decodes to %d pixels, want %dx%d=%d",
		e.ObjectID, e.Pixels, e.Width, e.Height, int(e.Width)*int(e.Height))
}
