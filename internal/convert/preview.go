package convert

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/maruel/ansi256"

	"epdpanel/internal/framebuf"
)

// Preview renders the physical panel contents, scale pixels per panel pixel.
func Preview(fb *framebuf.Buffer, scale int) *image.NRGBA {
	if scale < 1 {
		scale = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, fb.Width()*scale, fb.Height()*scale))
	for y := 0; y < fb.Height(); y++ {
		for x := 0; x < fb.Width(); x++ {
			c := inkColorOf(fb.InkAt(x, y))
			for j := 0; j < scale; j++ {
				for i := 0; i < scale; i++ {
					img.SetNRGBA(x*scale+i, y*scale+j, c)
				}
			}
		}
	}
	return img
}

func inkColorOf(k framebuf.Ink) color.NRGBA {
	switch k {
	case framebuf.Black:
		return framebuf.BlackColor
	case framebuf.AccentInk:
		return framebuf.AccentColor
	default:
		return framebuf.PaperColor
	}
}

// WritePNG encodes Preview(fb, scale) as PNG.
func WritePNG(w io.Writer, fb *framebuf.Buffer, scale int) error {
	return png.Encode(w, Preview(fb, scale))
}

// WriteANSI draws the panel on a terminal, one colored block per cell of
// step x step panel pixels. A cell shows the darkest ink it contains.
func WriteANSI(w io.Writer, fb *framebuf.Buffer, step int) error {
	if step < 1 {
		step = 1
	}
	p := ansi256.Default
	var buf bytes.Buffer
	for y := 0; y < fb.Height(); y += step {
		buf.WriteString("\033[0m")
		for x := 0; x < fb.Width(); x += step {
			buf.WriteString(p.Block(inkColorOf(cellInk(fb, x, y, step))))
		}
		buf.WriteString("\033[0m\n")
	}
	_, err := buf.WriteTo(w)
	return err
}

func cellInk(fb *framebuf.Buffer, x0, y0, step int) framebuf.Ink {
	ink := framebuf.Paper
	for y := y0; y < y0+step && y < fb.Height(); y++ {
		for x := x0; x < x0+step && x < fb.Width(); x++ {
			switch fb.InkAt(x, y) {
			case framebuf.Black:
				return framebuf.Black
			case framebuf.AccentInk:
				ink = framebuf.AccentInk
			}
		}
	}
	return ink
}
