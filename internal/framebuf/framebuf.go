// Package framebuf holds packed 1-bit panel images.
//
// A plane stores one bit per pixel, row-major, MSB first: pixel (x, y) lives
// in byte (x+y*width)/8 at bit 7-(x%8). A 0 bit is ink (black or accent), a 1
// bit is paper.
package framebuf

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrGeometry is returned for sizes the controller cannot address.
var ErrGeometry = errors.New("framebuf: invalid geometry")

// Orientation maps logical drawing coordinates onto the panel.
type Orientation struct {
	// Transpose swaps x and y before anything else.
	Transpose bool
	// Invert flips the meaning of the foreground flag.
	Invert bool
}

func (o Orientation) String() string {
	return fmt.Sprintf("transpose=%t invert=%t", o.Transpose, o.Invert)
}

// Buffer is a one or two plane frame buffer.
type Buffer struct {
	width, height int
	black         []byte
	accent        []byte
	orient        Orientation
}

// New allocates a cleared buffer. planes is 1 for black/white panels and 2
// when the panel has an accent color.
func New(width, height, planes int) (*Buffer, error) {
	if width <= 0 || height <= 0 || width%8 != 0 {
		return nil, fmt.Errorf("%w: %dx%d, width must be a positive multiple of 8", ErrGeometry, width, height)
	}
	if planes != 1 && planes != 2 {
		return nil, fmt.Errorf("%w: %d planes", ErrGeometry, planes)
	}
	size := width / 8 * height
	b := &Buffer{width: width, height: height, black: make([]byte, size)}
	if planes == 2 {
		b.accent = make([]byte, size)
	}
	b.Clear(0xFF)
	return b, nil
}

// Width is the physical width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height is the physical height in pixels.
func (b *Buffer) Height() int { return b.height }

// PlaneSize is the byte length of one plane.
func (b *Buffer) PlaneSize() int { return len(b.black) }

// Orientation returns the active mapping.
func (b *Buffer) Orientation() Orientation { return b.orient }

// SetOrientation changes the mapping for subsequent drawing. Pixels already
// drawn are not moved.
func (b *Buffer) SetOrientation(o Orientation) { b.orient = o }

// Clear fills the black plane with fill and resets the accent plane to paper.
func (b *Buffer) Clear(fill byte) {
	for i := range b.black {
		b.black[i] = fill
	}
	for i := range b.accent {
		b.accent[i] = 0xFF
	}
}

// Bytes returns the black plane. Callers must not modify it.
func (b *Buffer) Bytes() []byte { return b.black }

// Accent returns the accent plane, or nil for a black/white buffer.
func (b *Buffer) Accent() []byte { return b.accent }

// HasAccent reports whether the buffer carries an accent plane.
func (b *Buffer) HasAccent() bool { return b.accent != nil }

// locate applies the orientation and returns the byte index and mask, or
// false when the pixel falls outside the panel.
func (b *Buffer) locate(x, y int) (int, byte, bool) {
	if b.orient.Transpose {
		x, y = y, x
	}
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0, 0, false
	}
	return (x + y*b.width) / 8, 0x80 >> uint(x%8), true
}

// SetPixel paints (x, y). fg draws ink unless the orientation is inverted.
// Out-of-range pixels are ignored.
func (b *Buffer) SetPixel(x, y int, fg bool) {
	i, mask, ok := b.locate(x, y)
	if !ok {
		return
	}
	if fg != b.orient.Invert {
		b.black[i] &^= mask
	} else {
		b.black[i] |= mask
	}
}

// SetAccent marks (x, y) in the accent plane. It is a no-op on black/white
// buffers.
func (b *Buffer) SetAccent(x, y int, on bool) {
	if b.accent == nil {
		return
	}
	i, mask, ok := b.locate(x, y)
	if !ok {
		return
	}
	if on {
		b.accent[i] &^= mask
	} else {
		b.accent[i] |= mask
	}
}

// Bit returns the raw black-plane bit at physical (x, y); true is paper.
func (b *Buffer) Bit(x, y int) bool {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return true
	}
	return b.black[(x+y*b.width)/8]&(0x80>>uint(x%8)) != 0
}

// AccentBit returns the raw accent bit at physical (x, y); true is no accent.
func (b *Buffer) AccentBit(x, y int) bool {
	if b.accent == nil || x < 0 || y < 0 || x >= b.width || y >= b.height {
		return true
	}
	return b.accent[(x+y*b.width)/8]&(0x80>>uint(x%8)) != 0
}

// Ink is what a single pixel shows.
type Ink int

const (
	Paper Ink = iota
	Black
	AccentInk
)

// Palette colors used by At and by previews.
var (
	PaperColor  = color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}
	BlackColor  = color.NRGBA{0x00, 0x00, 0x00, 0xFF}
	AccentColor = color.NRGBA{0xD0, 0x10, 0x10, 0xFF}
)

// Classify maps an arbitrary color to an ink. Strongly red colors become
// accent when allowed, dark colors black.
func Classify(c color.Color, accent bool) Ink {
	r, g, bl, a := c.RGBA()
	if a < 0x8000 {
		return Paper
	}
	if accent && r > 0x9000 && g < 0x6000 && bl < 0x6000 {
		return AccentInk
	}
	// Rec. 601 luma on 16-bit channels.
	y := (299*r + 587*g + 114*bl) / 1000
	if y < 0x8000 {
		return Black
	}
	return Paper
}

// InkAt returns what physical pixel (x, y) shows. Accent wins over black.
func (b *Buffer) InkAt(x, y int) Ink {
	switch {
	case !b.AccentBit(x, y):
		return AccentInk
	case !b.Bit(x, y):
		return Black
	default:
		return Paper
	}
}

// ColorModel implements draw.Image.
func (b *Buffer) ColorModel() color.Model { return color.NRGBAModel }

// Bounds implements draw.Image in logical coordinates.
func (b *Buffer) Bounds() image.Rectangle {
	if b.orient.Transpose {
		return image.Rect(0, 0, b.height, b.width)
	}
	return image.Rect(0, 0, b.width, b.height)
}

// At implements draw.Image in logical coordinates.
func (b *Buffer) At(x, y int) color.Color {
	if b.orient.Transpose {
		x, y = y, x
	}
	switch b.InkAt(x, y) {
	case AccentInk:
		return AccentColor
	case Black:
		return BlackColor
	default:
		return PaperColor
	}
}

// Set implements draw.Image in logical coordinates.
func (b *Buffer) Set(x, y int, c color.Color) {
	switch Classify(c, b.accent != nil) {
	case AccentInk:
		b.SetPixel(x, y, false)
		b.SetAccent(x, y, true)
	case Black:
		b.SetPixel(x, y, true)
		b.SetAccent(x, y, false)
	default:
		b.SetPixel(x, y, false)
		b.SetAccent(x, y, false)
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.black = append([]byte(nil), b.black...)
	if b.accent != nil {
		c.accent = append([]byte(nil), b.accent...)
	}
	return &c
}
