package dispatch

import (
	"time"

	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
	appLog "epdpanel/internal/log"
	"epdpanel/internal/pattern"
)

// The multi-push routines hold the session for their whole run so that no
// other caller can slip a push between their steps.

func solid(black bool) func(fb *framebuf.Buffer) error {
	return func(fb *framebuf.Buffer) error {
		pattern.Solid(fb, black)
		return nil
	}
}

// Stripes shows vertical stripes, holds them and clears to white. On a
// tri-color buffer every third stripe uses the accent ink.
func (s *Session) Stripes() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.show(s.ctx.Push, func(fb *framebuf.Buffer) error {
		if fb.HasAccent() {
			pattern.AccentStripes(fb, 12)
		} else {
			pattern.Stripes(fb, 12, 24)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.clock.Sleep(400 * time.Millisecond)
	_, err = s.show(s.ctx.Push, solid(false))
	return err
}

// Clean runs black, white and then two white/black stimulation rounds.
func (s *Session) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := []bool{true, false, false, true, false, true}
	for _, black := range steps {
		if _, err := s.show(s.ctx.Push, solid(black)); err != nil {
			return err
		}
	}
	return nil
}

// UltraClear is the anti-ghosting cycle: six pushes that alternate the old
// plane fill every phase, swap the plane order every two phases and switch
// to a black frame for the last two, then a white push with the context's
// own options.
func (s *Session) UltraClear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appLog.Info("ultra clear start")
	for phase := 0; phase < 6; phase++ {
		opts := epd.PushOptions{Order: epd.OldFirst, OldFill: 0x00}
		if phase&1 != 0 {
			opts.OldFill = 0xFF
		}
		if phase&2 != 0 {
			opts.Order = epd.NewFirst
		}
		black := phase&4 != 0
		appLog.Debug("ultra clear phase", "phase", phase, "order", opts.Order, "black", black)
		if _, err := s.show(opts, solid(black)); err != nil {
			return err
		}
		s.clock.Sleep(300 * time.Millisecond)
	}
	_, err := s.show(s.ctx.Push, solid(false))
	appLog.Info("ultra clear end")
	return err
}

// PolarityBands shows the top half with old fill 0x00 and then the bottom
// half with old fill 0xFF, so both readings of the old plane can be compared
// on the glass, and clears to white.
func (s *Session) PolarityBands() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.ctx.Push.Order
	for _, step := range []struct {
		top  bool
		fill byte
	}{{true, 0x00}, {false, 0xFF}} {
		top := step.top
		_, err := s.show(epd.PushOptions{Order: order, OldFill: step.fill}, func(fb *framebuf.Buffer) error {
			pattern.Band(fb, top)
			return nil
		})
		if err != nil {
			return err
		}
		s.clock.Sleep(500 * time.Millisecond)
	}
	_, err := s.show(s.ctx.Push, solid(false))
	return err
}

// Restart puts the controller into deep sleep, waits and initialises the
// configured panel again.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv.State().Awake() {
		if err := s.drv.DeepSleep(); err != nil {
			return err
		}
	}
	s.clock.Sleep(300 * time.Millisecond)
	return s.init(s.base)
}

// Condition initialises the panel if needed, runs UltraClear and puts the
// controller back to sleep. It is the scheduled and -once job.
func (s *Session) Condition() error {
	if err := s.UltraClear(); err != nil {
		return err
	}
	return s.Sleep()
}
