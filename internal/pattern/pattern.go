// Package pattern draws the bring-up test images. Every pattern starts from
// a white buffer and draws in logical coordinates, so orientation flags
// apply.
package pattern

import (
	"image"

	"epdpanel/internal/framebuf"
	"epdpanel/internal/glyph"
)

// Text shown by the digit and letter patterns.
const (
	DigitsText  = "0123456789 ABCDEF"
	LettersText = "TEST ABC xyz"
)

func fillRect(fb *framebuf.Buffer, r image.Rectangle) {
	r = r.Intersect(fb.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			fb.SetPixel(x, y, true)
		}
	}
}

// Solid fills the whole buffer black or white.
func Solid(fb *framebuf.Buffer, black bool) {
	fb.Clear(0xFF)
	if black {
		fillRect(fb, fb.Bounds())
	}
}

// Digits writes DigitsText in the top-left corner.
func Digits(fb *framebuf.Buffer) {
	fb.Clear(0xFF)
	glyph.Draw(fb, 2, 2, DigitsText)
}

// Letters writes LettersText in the top-left corner.
func Letters(fb *framebuf.Buffer) {
	fb.Clear(0xFF)
	glyph.Draw(fb, 2, 2, LettersText)
}

// HalfBlack blackens the top half.
func HalfBlack(fb *framebuf.Buffer) {
	fb.Clear(0xFF)
	b := fb.Bounds()
	fillRect(fb, image.Rect(0, 0, b.Dx(), b.Dy()/2))
}

// Band blackens the top or the bottom half, used to compare the two old
// plane fills.
func Band(fb *framebuf.Buffer, top bool) {
	fb.Clear(0xFF)
	b := fb.Bounds()
	if top {
		fillRect(fb, image.Rect(0, 0, b.Dx(), b.Dy()/2))
	} else {
		fillRect(fb, image.Rect(0, b.Dy()/2, b.Dx(), b.Dy()))
	}
}

// Stripes draws black vertical stripes width pixels wide every period
// pixels, starting at x=0.
func Stripes(fb *framebuf.Buffer, width, period int) {
	fb.Clear(0xFF)
	if period <= 0 {
		return
	}
	b := fb.Bounds()
	for x := 0; x < b.Dx(); x += period {
		fillRect(fb, image.Rect(x, 0, x+width, b.Dy()))
	}
}

// Bars draws 8 pixel bars plus a marker column every 32 pixels, which makes
// the effective row width readable on the glass.
func Bars(fb *framebuf.Buffer) {
	fb.Clear(0xFF)
	b := fb.Bounds()
	for x := 0; x < b.Dx(); x++ {
		if (x/8)%2 == 0 || x%32 == 0 {
			fillRect(fb, image.Rect(x, 0, x+1, b.Dy()))
		}
	}
}

// ResolutionBands draws 16 pixel bands and a one letter tag.
func ResolutionBands(fb *framebuf.Buffer, tag string) {
	fb.Clear(0xFF)
	b := fb.Bounds()
	for x := 0; x < b.Dx(); x++ {
		if (x/16)%2 == 0 {
			fillRect(fb, image.Rect(x, 0, x+1, b.Dy()))
		}
	}
	glyph.Draw(fb, 4, 4, tag)
}

// Border draws a one pixel frame, a dotted crosshair through the centre and
// the letter B.
func Border(fb *framebuf.Buffer) {
	fb.Clear(0xFF)
	b := fb.Bounds()
	w, h := b.Dx(), b.Dy()
	for x := 0; x < w; x++ {
		fb.SetPixel(x, 0, true)
		fb.SetPixel(x, h-1, true)
		if x%2 == 0 {
			fb.SetPixel(x, h/2, true)
		}
	}
	for y := 0; y < h; y++ {
		fb.SetPixel(0, y, true)
		fb.SetPixel(w-1, y, true)
		if y%2 == 0 {
			fb.SetPixel(w/2, y, true)
		}
	}
	glyph.Draw(fb, 2, 2, "B")
}

// AccentStripes fills alternate stripes with black and accent ink. On a
// black/white buffer the accent stripes stay white.
func AccentStripes(fb *framebuf.Buffer, width int) {
	fb.Clear(0xFF)
	if width <= 0 {
		return
	}
	b := fb.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			switch (x / width) % 3 {
			case 0:
				fb.SetPixel(x, y, true)
			case 1:
				fb.SetAccent(x, y, true)
			}
		}
	}
}
