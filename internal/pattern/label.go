package pattern

import (
	"fmt"
	"image"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"epdpanel/internal/framebuf"
)

var (
	goFontOnce sync.Once
	goFont     *truetype.Font
	goFontErr  error
)

func labelFace(size float64) (font.Face, error) {
	goFontOnce.Do(func() {
		goFont, goFontErr = truetype.Parse(goregular.TTF)
	})
	if goFontErr != nil {
		return nil, fmt.Errorf("pattern: parse go font: %w", goFontErr)
	}
	return truetype.NewFace(goFont, &truetype.Options{Size: size}), nil
}

// Label draws text centred in a rounded frame, sized to fill most of the
// panel height. It is used to tag calibration attempts so photos of the glass
// can be matched to log lines.
func Label(fb *framebuf.Buffer, text string) error {
	fb.Clear(0xFF)
	b := fb.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	size := h / 2
	if w/2 < size {
		size = w / 2
	}
	face, err := labelFace(size)
	if err != nil {
		return err
	}

	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(3)
	dc.DrawRoundedRectangle(3, 3, w-6, h-6, 8)
	dc.Stroke()
	dc.SetFontFace(face)
	dc.DrawStringAnchored(text, w/2, h/2, 0.5, 0.5)

	Blit(fb, dc.Image())
	return nil
}

// Blit copies every dark pixel of img onto fb in logical coordinates.
// Light pixels are left untouched.
func Blit(fb *framebuf.Buffer, img image.Image) {
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			switch framebuf.Classify(img.At(x, y), fb.HasAccent()) {
			case framebuf.Black:
				fb.SetPixel(x-r.Min.X, y-r.Min.Y, true)
			case framebuf.AccentInk:
				fb.SetAccent(x-r.Min.X, y-r.Min.Y, true)
			}
		}
	}
}
