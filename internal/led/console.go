package led

import (
	"bytes"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Console emulates the indicator as one colored block on a terminal line.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	palette ansi256.Palette
	last    color.NRGBA
	buf     bytes.Buffer
}

// NewConsole writes to stdout, translating escapes on Windows consoles.
func NewConsole() *Console {
	return NewConsoleWriter(colorable.NewColorableStdout())
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{w: w, palette: *ansi256.Default}
}

func (c *Console) String() string {
	return "ConsoleLED"
}

// Set draws the color, scaled up so that dim board colors remain visible.
func (c *Console) Set(col color.NRGBA) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = col
	c.buf.Reset()
	_, _ = c.buf.WriteString("\r\033[0m")
	_, _ = io.WriteString(&c.buf, c.palette.Block(boost(col)))
	_, _ = c.buf.WriteString("\033[0m ")
	_, err := c.buf.WriteTo(c.w)
	return err
}

// Last returns the color most recently set.
func (c *Console) Last() color.NRGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Halt resets the terminal attributes.
func (c *Console) Halt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.Write([]byte("\n\033[0m"))
	return err
}

func boost(c color.NRGBA) color.NRGBA {
	scale := func(v uint8) uint8 {
		s := int(v) * 6
		if s > 0xFF {
			s = 0xFF
		}
		return uint8(s)
	}
	return color.NRGBA{scale(c.R), scale(c.G), scale(c.B), 0xFF}
}
