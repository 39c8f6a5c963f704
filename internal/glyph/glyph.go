// Package glyph renders bitmap text onto a frame buffer one pixel at a time.
package glyph

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Pixeler is the drawing surface text is rendered onto.
type Pixeler interface {
	SetPixel(x, y int, fg bool)
}

// Face is the fixed 7x13 face used for all bring-up text.
var Face font.Face = basicfont.Face7x13

// Measure returns the pixel size of s in Face.
func Measure(s string) (w, h int) {
	m := Face.Metrics()
	adv := font.MeasureString(Face, s)
	return adv.Ceil(), (m.Ascent + m.Descent).Ceil()
}

// Draw renders s with its top-left corner at (x, y). Only glyph pixels are
// touched; the background is left as is. It returns the advance in pixels.
func Draw(dst Pixeler, x, y int, s string) int {
	if s == "" {
		return 0
	}
	mask := Mask(s)
	copyMask(dst, mask, x, y)
	return mask.Bounds().Dx()
}

// copyMask sets every pixel of dst whose mask alpha is at least one half.
func copyMask(dst Pixeler, mask *image.Alpha, x, y int) {
	b := mask.Bounds()
	for j := b.Min.Y; j < b.Max.Y; j++ {
		for i := b.Min.X; i < b.Max.X; i++ {
			if mask.AlphaAt(i, j).A >= 0x80 {
				dst.SetPixel(x+i-b.Min.X, y+j-b.Min.Y, true)
			}
		}
	}
}

// Mask renders s into a fresh alpha mask, for callers that composite text
// themselves.
func Mask(s string) *image.Alpha {
	w, h := Measure(s)
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: Face,
		Dot:  fixed.P(0, Face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
	return mask
}
