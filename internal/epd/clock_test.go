package epd

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
}

// timedLine reads active between busyFrom and busyUntil, measured from the
// clock's start, and idle otherwise.
type timedLine struct {
	clock     *fakeClock
	start     time.Time
	idle      gpio.Level
	busyFrom  time.Duration
	busyUntil time.Duration
	reads     int
}

func newTimedLine(c *fakeClock, idle gpio.Level, from, until time.Duration) *timedLine {
	return &timedLine{clock: c, start: c.now, idle: idle, busyFrom: from, busyUntil: until}
}

func (l *timedLine) Read() gpio.Level {
	l.reads++
	t := l.clock.now.Sub(l.start)
	if t >= l.busyFrom && t < l.busyUntil {
		return !l.idle
	}
	return l.idle
}
