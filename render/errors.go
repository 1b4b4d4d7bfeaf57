package render

import "fmt"

// ObjectNotFoundError reports a composition object whose definition is not
// in effect for the display set.
type ObjectNotFoundError struct {
	ObjectID uint16
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("render: object %d not found", e.ObjectID)
}

// PaletteNotFoundError reports a missing palette or a color index the
// palette does not define.
type PaletteNotFoundError struct {
	PaletteID uint8
	EntryID   uint8
}

func (e *PaletteNotFoundError) Error() string {
	return fmt.Sprintf("render: palette %d entry %d not found", e.PaletteID, e.EntryID)
}

// WindowNotFoundError reports a composition object placed in an undefined
// window. It is only returned when Options.CheckWindows is set.
type WindowNotFoundError struct {
	WindowID uint8
}

func (e *WindowNotFoundError) Error() string {
	return fmt.Sprintf("render: window %d not found", e.WindowID)
}

// ColorConversionError wraps a failure converting the composed buffer to
// RGB.
type ColorConversionError struct {
	Err error
}

func (e *ColorConversionError) Error() string {
	return "render: color conversion: " + e.Err.Error()
}

func (e *ColorConversionError) Unwrap() error { return e.Err }
