// Package led drives the single status indicator of the panel board.
package led

import (
	"image/color"
	"sync"
	"time"

	"epdpanel/internal/epd"
)

// Indicator is one RGB status light.
type Indicator interface {
	Set(c color.NRGBA) error
}

// Milestone colors. Values are low on purpose: the board LED is bright.
var (
	Off      = color.NRGBA{0, 0, 0, 0xFF}
	Red      = color.NRGBA{40, 0, 0, 0xFF}
	DimGreen = color.NRGBA{0, 40, 0, 0xFF}
	Blue     = color.NRGBA{0, 0, 40, 0xFF}
	White    = color.NRGBA{40, 40, 40, 0xFF}
	Yellow   = color.NRGBA{40, 40, 0, 0xFF}
	Cyan     = color.NRGBA{0, 40, 40, 0xFF}
	Magenta  = color.NRGBA{40, 0, 40, 0xFF}
	DimGray  = color.NRGBA{10, 10, 10, 0xFF}
)

// Meaning of the colors outside the self test.
var (
	Idle  = DimGreen
	Busy  = Blue
	Error = Red
)

// SelfTest shows red, green, blue and white for 150 ms each and settles on
// the idle color.
func SelfTest(ind Indicator, clock epd.Clock) error {
	for _, c := range []color.NRGBA{Red, DimGreen, Blue, White} {
		if err := ind.Set(c); err != nil {
			return err
		}
		clock.Sleep(150 * time.Millisecond)
	}
	return ind.Set(Idle)
}

var cyclePalette = [8]color.NRGBA{Red, DimGreen, Blue, Yellow, White, Cyan, Magenta, DimGray}

// Cycle steps through eight colors, one per call to Next. It shows the
// periodic status task is alive.
type Cycle struct {
	mu    sync.Mutex
	ind   Indicator
	phase uint8
}

// NewCycle returns a Cycle starting at red.
func NewCycle(ind Indicator) *Cycle {
	return &Cycle{ind: ind}
}

// Next shows the next color.
func (c *Cycle) Next() error {
	c.mu.Lock()
	col := cyclePalette[c.phase&7]
	c.phase++
	c.mu.Unlock()
	return c.ind.Set(col)
}

// Nop discards every update.
type Nop struct{}

func (Nop) Set(color.NRGBA) error { return nil }

// Milestones maps driver events to indicator colors. Errors from the
// indicator are dropped: the light is advisory.
type Milestones struct {
	Indicator Indicator
}

func (m Milestones) StateChanged(_, to epd.State) {
	switch to {
	case epd.Resetting, epd.Configuring, epd.Refreshing:
		_ = m.Indicator.Set(Busy)
	case epd.PoweredOn, epd.Idle:
		_ = m.Indicator.Set(Idle)
	case epd.PoweredOff:
		_ = m.Indicator.Set(Off)
	}
}

func (m Milestones) BusyWaited(res epd.WaitResult) {
	if res.Outcome == epd.WaitTimedOut {
		_ = m.Indicator.Set(Error)
	}
}

func (Milestones) PlaneSent(byte, int) {}

var _ epd.Observer = Milestones{}
