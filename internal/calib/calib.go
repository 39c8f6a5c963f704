// Package calib holds the exploratory sweeps used to bring up an unknown
// panel: each attempt is a named panel configuration and driver context run
// through the normal session, tagged on the glass and logged with the
// controller status byte.
package calib

import (
	"fmt"
	"strings"
	"time"

	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
	appLog "epdpanel/internal/log"
	"epdpanel/internal/pattern"
)

// Target is the session surface the sweeps drive.
type Target interface {
	// Reinit resets the controller with cfg and adopts ctx.
	Reinit(cfg epd.PanelConfig, ctx epd.DriverContext) error
	// ShowWith draws into a cleared buffer and pushes it with opts.
	ShowWith(opts epd.PushOptions, draw func(fb *framebuf.Buffer) error) (epd.PushReport, error)
	// ReadStatus reads the controller status byte.
	ReadStatus() (byte, error)
	// Pause waits between attempts.
	Pause(d time.Duration)
}

// Attempt is one configuration tried by a sweep.
type Attempt struct {
	Name    string
	Config  epd.PanelConfig
	Context epd.DriverContext
	// Draw is the identifying pattern; nil uses HalfBlack.
	Draw func(fb *framebuf.Buffer) error
	// Hold is the pause after the pattern push.
	Hold time.Duration
	// Clear pushes a white frame after Hold.
	Clear bool
}

// Result is the outcome of one attempt.
type Result struct {
	Name   string
	Status byte
	Report epd.PushReport
	Err    error
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: error: %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: status=0x%02X new=%08X", r.Name, r.Status, r.Report.NewHash)
}

// Run executes attempts in order. A failed attempt is recorded and the sweep
// carries on; a panel that rejects one geometry may accept the next.
func Run(t Target, sweep string, attempts []Attempt) []Result {
	appLog.Info("calibration sweep start", "sweep", sweep, "attempts", len(attempts))
	results := make([]Result, 0, len(attempts))
	for _, a := range attempts {
		res := runAttempt(t, a)
		if res.Err != nil {
			appLog.Error("calibration attempt failed", res.Err, "sweep", sweep, "attempt", a.Name)
		} else {
			appLog.Info("calibration attempt",
				"sweep", sweep,
				"attempt", a.Name,
				"status", fmt.Sprintf("0x%02X", res.Status),
				"new_hash", fmt.Sprintf("%08X", res.Report.NewHash),
			)
		}
		results = append(results, res)
	}
	appLog.Info("calibration sweep end", "sweep", sweep)
	return results
}

func runAttempt(t Target, a Attempt) Result {
	res := Result{Name: a.Name}
	if err := t.Reinit(a.Config, a.Context); err != nil {
		res.Err = err
		return res
	}
	draw := a.Draw
	if draw == nil {
		draw = func(fb *framebuf.Buffer) error {
			pattern.HalfBlack(fb)
			return nil
		}
	}
	res.Report, res.Err = t.ShowWith(a.Context.Push, draw)
	if res.Err != nil {
		return res
	}
	res.Status, res.Err = t.ReadStatus()
	if res.Err != nil {
		return res
	}
	t.Pause(a.Hold)
	if a.Clear {
		_, res.Err = t.ShowWith(a.Context.Push, func(fb *framebuf.Buffer) error {
			pattern.Solid(fb, false)
			return nil
		})
	}
	return res
}

// Summary renders results one per line.
func Summary(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}
