// Package render composites PGS display sets into bitmaps.
//
// Composite paints each composition object of a display set into a packed
// alpha, Y, Cb, Cr buffer the size of the frame. Render converts that
// buffer with the BT.709 full-range matrix and returns a Frame holding
// premultiplied alpha, R, G, B pixels. Pixels no object covers stay fully
// transparent.
//
// Colors always resolve against palette 0. Streams that switch palettes
// through the composition's palette id are drawn with palette 0's colors.
package render
