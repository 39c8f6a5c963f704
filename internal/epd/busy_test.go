package epd

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
)

func TestDetectPolarity(t *testing.T) {
	for _, tc := range []struct {
		name string
		pre  gpio.Level
		want gpio.Level
	}{
		{name: "high before power-on means active low", pre: gpio.High, want: gpio.Low},
		{name: "low before power-on means active high", pre: gpio.Low, want: gpio.High},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectPolarity(BusyState{Timeout: time.Second}, tc.pre)
			want := BusyState{ActiveLevel: tc.want, PolarityKnown: true, Timeout: time.Second}
			if diff := cmp.Diff(got, want); diff != "" {
				t.Errorf("DetectPolarity() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestRefinePolarity(t *testing.T) {
	guessed := BusyState{ActiveLevel: gpio.High, PolarityKnown: true}
	for _, tc := range []struct {
		name        string
		samples     []gpio.Level
		want        BusyState
		wantChanged bool
	}{
		{name: "no samples", want: guessed},
		{name: "steady", samples: []gpio.Level{gpio.High, gpio.High, gpio.High}, want: guessed},
		{
			name:        "falls to low",
			samples:     []gpio.Level{gpio.High, gpio.High, gpio.Low},
			want:        BusyState{ActiveLevel: gpio.Low, PolarityKnown: true},
			wantChanged: true,
		},
		{
			name:        "first transition wins",
			samples:     []gpio.Level{gpio.Low, gpio.High, gpio.Low},
			want:        BusyState{ActiveLevel: gpio.High, PolarityKnown: true},
			wantChanged: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := RefinePolarity(guessed, tc.samples)
			if changed != tc.wantChanged {
				t.Errorf("RefinePolarity() changed = %t, want %t", changed, tc.wantChanged)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("RefinePolarity() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestWaitReadySkipsUnknownPolarity(t *testing.T) {
	clock := newFakeClock()
	line := newTimedLine(clock, gpio.High, 0, time.Hour)
	b := NewBusySync(line, clock, time.Second)

	res := b.WaitReady(0)

	if res.Outcome != WaitSkipped {
		t.Errorf("WaitReady() = %v, want %v", res.Outcome, WaitSkipped)
	}
	if line.reads != 0 || clock.slept != 0 {
		t.Errorf("WaitReady() touched the line: reads=%d slept=%v", line.reads, clock.slept)
	}
}

func TestWaitReadyCompletes(t *testing.T) {
	clock := newFakeClock()
	line := newTimedLine(clock, gpio.High, 0, 40*time.Millisecond)
	b := NewBusySync(line, clock, time.Second)
	b.state = DetectPolarity(b.state, gpio.High)
	// Coarser polls are clamped to the 5 ms ceiling.
	b.PollInterval = 50 * time.Millisecond

	res := b.WaitReady(0)

	if res.Outcome != WaitCompleted {
		t.Fatalf("WaitReady() = %v, want %v", res.Outcome, WaitCompleted)
	}
	if res.Elapsed < 40*time.Millisecond || res.Elapsed > 45*time.Millisecond {
		t.Errorf("WaitReady() elapsed %v, want within one poll of 40ms", res.Elapsed)
	}
	if got := b.State().Timeouts; got != 0 {
		t.Errorf("Timeouts = %d, want 0", got)
	}
	if diff := cmp.Diff(b.State().LastWait, res); diff != "" {
		t.Errorf("LastWait difference (-got +want):\n%s", diff)
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	clock := newFakeClock()
	line := newTimedLine(clock, gpio.Low, 0, time.Hour)
	b := NewBusySync(line, clock, 100*time.Millisecond)
	b.state = DetectPolarity(b.state, gpio.Low)

	for i := 1; i <= 2; i++ {
		res := b.WaitReady(0)
		if res.Outcome != WaitTimedOut {
			t.Fatalf("WaitReady() #%d = %v, want %v", i, res.Outcome, WaitTimedOut)
		}
		if res.Elapsed < 100*time.Millisecond {
			t.Errorf("WaitReady() #%d elapsed %v, want >= 100ms", i, res.Elapsed)
		}
		if got := b.State().Timeouts; got != i {
			t.Errorf("Timeouts = %d, want %d", got, i)
		}
	}
}

func TestRefine(t *testing.T) {
	for _, tc := range []struct {
		name        string
		from, until time.Duration
		wantActive  gpio.Level
		wantChanged bool
		wantMinTime time.Duration
	}{
		{
			name:        "goes busy after power-on",
			from:        10 * time.Millisecond,
			until:       time.Second,
			wantActive:  gpio.Low,
			wantChanged: true,
		},
		{
			name:        "never moves",
			from:        time.Hour,
			until:       time.Hour,
			wantActive:  gpio.High,
			wantMinTime: DefaultRefineWindow,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			line := newTimedLine(clock, gpio.High, tc.from, tc.until)
			b := NewBusySync(line, clock, time.Second)
			// Start from the opposite guess so a refinement is visible.
			b.state = DetectPolarity(b.state, gpio.Low)

			st, changed := b.Refine()

			if changed != tc.wantChanged {
				t.Errorf("Refine() changed = %t, want %t", changed, tc.wantChanged)
			}
			if st.ActiveLevel != tc.wantActive || !st.PolarityKnown {
				t.Errorf("Refine() = %+v, want active %v", st, tc.wantActive)
			}
			if clock.slept < tc.wantMinTime {
				t.Errorf("Refine() sampled for %v, want >= %v", clock.slept, tc.wantMinTime)
			}
			if clock.slept > DefaultRefineWindow+refineSampleInterval {
				t.Errorf("Refine() sampled for %v, past the window", clock.slept)
			}
		})
	}
}

func TestForget(t *testing.T) {
	clock := newFakeClock()
	b := NewBusySync(newTimedLine(clock, gpio.High, 0, 0), clock, 3*time.Second)
	b.Detect()
	b.state.Timeouts = 4

	b.Forget()

	if diff := cmp.Diff(b.State(), BusyState{Timeout: 3 * time.Second}); diff != "" {
		t.Errorf("Forget() difference (-got +want):\n%s", diff)
	}
}
