package epd

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	appLog "epdpanel/internal/log"
)

const (
	DefaultBusyTimeout  = 5 * time.Second
	DefaultPollInterval = 5 * time.Millisecond
	DefaultRefineWindow = 150 * time.Millisecond

	refineSampleInterval = 2 * time.Millisecond
	postWaitSettle       = 2 * time.Millisecond
)

// WaitOutcome tells how a busy wait ended.
type WaitOutcome int

const (
	// WaitCompleted means the line left its active level before the timeout.
	WaitCompleted WaitOutcome = iota
	// WaitSkipped means polarity was unknown and the wait was not attempted.
	WaitSkipped
	// WaitTimedOut means the controller still looked busy at the deadline.
	// The caller carries on; the visible result is an incomplete refresh.
	WaitTimedOut
)

func (o WaitOutcome) String() string {
	switch o {
	case WaitCompleted:
		return "completed"
	case WaitSkipped:
		return "skipped"
	case WaitTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// WaitResult is the reported outcome of one busy wait.
type WaitResult struct {
	Outcome WaitOutcome
	Elapsed time.Duration
}

// BusyState describes what is known about the busy line.
//
// The panel datasheets do not pin down the active polarity, so it is inferred
// from the line itself. Until it is known, waits are skipped rather than
// risking a wait that never ends.
type BusyState struct {
	ActiveLevel   gpio.Level
	PolarityKnown bool
	Timeout       time.Duration
	Timeouts      int
	LastWait      WaitResult
}

// DetectPolarity guesses the active level from one sample taken before the
// first power-on. A high line at that point is taken as "ready", making the
// busy level low; anything else assumes active-high. This is a heuristic
// observed on this controller family, not a datasheet guarantee.
func DetectPolarity(st BusyState, pre gpio.Level) BusyState {
	st.PolarityKnown = true
	st.ActiveLevel = gpio.High
	if pre == gpio.High {
		st.ActiveLevel = gpio.Low
	}
	return st
}

// RefinePolarity looks for the first transition in samples taken after the
// power-on wait. The line starts from idle there, so a controller that
// asserts busy late moves it to the active level. It reports whether a
// transition was seen; without one st is returned unchanged.
func RefinePolarity(st BusyState, samples []gpio.Level) (BusyState, bool) {
	if len(samples) == 0 {
		return st, false
	}
	first := samples[0]
	for _, v := range samples[1:] {
		if v != first {
			st.ActiveLevel = v
			st.PolarityKnown = true
			return st, true
		}
	}
	return st, false
}

// BusySync blocks callers until the controller signals readiness.
type BusySync struct {
	line  InputLine
	clock Clock

	PollInterval time.Duration
	RefineWindow time.Duration

	state BusyState
}

// NewBusySync returns a synchronizer with unknown polarity.
func NewBusySync(line InputLine, clock Clock, timeout time.Duration) *BusySync {
	if clock == nil {
		clock = RealClock
	}
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	return &BusySync{
		line:         line,
		clock:        clock,
		PollInterval: DefaultPollInterval,
		RefineWindow: DefaultRefineWindow,
		state:        BusyState{Timeout: timeout},
	}
}

// State returns a copy of the current busy state.
func (b *BusySync) State() BusyState {
	return b.state
}

// Level reports the raw line for status display. Lines that can be peeked
// are not read, so polling status never disturbs a wait.
func (b *BusySync) Level() gpio.Level {
	if p, ok := b.line.(LevelPeeker); ok {
		return p.Peek()
	}
	return b.line.Read()
}

// Forget drops the inferred polarity and counters. Called on reinitialisation.
func (b *BusySync) Forget() {
	b.state = BusyState{Timeout: b.state.Timeout}
}

// Detect samples the line once and applies DetectPolarity.
func (b *BusySync) Detect() BusyState {
	pre := b.line.Read()
	b.state = DetectPolarity(b.state, pre)
	appLog.Info("busy polarity guessed", "pre", pre, "active", b.state.ActiveLevel)
	return b.state
}

// Refine samples the line for up to RefineWindow and applies RefinePolarity.
func (b *BusySync) Refine() (BusyState, bool) {
	samples := b.sample(b.RefineWindow)
	st, changed := RefinePolarity(b.state, samples)
	b.state = st
	if changed {
		appLog.Info("busy transition observed", "active", st.ActiveLevel)
	} else {
		appLog.Debug("busy no transition", "samples", len(samples))
	}
	return st, changed
}

func (b *BusySync) sample(window time.Duration) []gpio.Level {
	start := b.clock.Now()
	samples := []gpio.Level{b.line.Read()}
	for b.clock.Now().Sub(start) < window {
		b.clock.Sleep(refineSampleInterval)
		v := b.line.Read()
		samples = append(samples, v)
		if v != samples[0] {
			break
		}
	}
	return samples
}

// WaitReady polls until the line leaves the active level or timeout elapses.
// A non-positive timeout uses the state's default. Timeouts are logged and
// counted, never returned as errors.
func (b *BusySync) WaitReady(timeout time.Duration) WaitResult {
	if !b.state.PolarityKnown {
		res := WaitResult{Outcome: WaitSkipped}
		b.state.LastWait = res
		return res
	}
	if timeout <= 0 {
		timeout = b.state.Timeout
	}
	interval := b.PollInterval
	if interval <= 0 || interval > DefaultPollInterval {
		interval = DefaultPollInterval
	}

	start := b.clock.Now()
	res := WaitResult{Outcome: WaitCompleted}
	for b.line.Read() == b.state.ActiveLevel {
		if b.clock.Now().Sub(start) >= timeout {
			res.Outcome = WaitTimedOut
			b.state.Timeouts++
			appLog.Warn("busy wait timed out", "timeout", timeout, "active", b.state.ActiveLevel)
			break
		}
		b.clock.Sleep(interval)
	}
	res.Elapsed = b.clock.Now().Sub(start)
	b.clock.Sleep(postWaitSettle)
	b.state.LastWait = res
	return res
}
