// Package convert moves images in and out of frame buffers: arbitrary images
// are packed onto the panel planes, and buffers are rendered back for
// previews.
package convert

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"epdpanel/internal/framebuf"
)

// Load reads a PNG, JPEG or GIF file.
func Load(path string) (image.Image, error) {
	img, err := gg.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("convert: load %s: %w", path, err)
	}
	return img, nil
}

// Pack draws img onto fb in logical coordinates.
//
// Behavior:
//
//   - fb is cleared to white first.
//   - An image larger than the buffer is centre-cropped on that axis; a
//     smaller one is centred with white margins.
//   - Pixels are classified per classifyPixel. Red ink lands on the accent
//     plane when fb has one and is treated as white otherwise.
func Pack(fb *framebuf.Buffer, img image.Image) {
	fb.Clear(0xFF)

	dst := fb.Bounds()
	src := img.Bounds()
	dx, sx, w := centre(dst.Dx(), src.Dx())
	dy, sy, h := centre(dst.Dy(), src.Dy())

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			c := color.NRGBAModel.Convert(img.At(src.Min.X+sx+px, src.Min.Y+sy+py)).(color.NRGBA)
			if c.A < 128 {
				continue
			}
			switch classifyPixel(c) {
			case inkBlack:
				fb.SetPixel(dx+px, dy+py, true)
			case inkRed:
				fb.SetAccent(dx+px, dy+py, true)
			}
		}
	}
}

// centre returns the destination offset, source offset and span that centre
// a source of length src within dst.
func centre(dst, src int) (dOff, sOff, n int) {
	if src >= dst {
		return 0, (src - dst) / 2, dst
	}
	return (dst - src) / 2, 0, src
}

// inkColor indicates which plane a pixel should be drawn to.
type inkColor int

const (
	inkWhite inkColor = iota
	inkBlack
	inkRed
)

// classifyPixel decides whether a pixel should be black, red, or white.
//
// Empirical thresholds:
//
//   - luma Y = 0.299R + 0.587G + 0.114B
//   - redness = R - max(G, B)
//   - Y < 64 → black
//   - R > 128 and redness > 32 → red
//   - otherwise white
func classifyPixel(c color.NRGBA) inkColor {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	y := 0.299*r + 0.587*g + 0.114*b

	maxGB := g
	if b > maxGB {
		maxGB = b
	}
	redness := r - maxGB

	if y < 64 {
		return inkBlack
	}
	if r > 128 && redness > 32 {
		return inkRed
	}
	return inkWhite
}
