package epd

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Transaction is one framed byte seen by a SimPanel.
type Transaction struct {
	Command bool
	Value   byte
}

// SimPanel is an in-memory controller. It records every framed byte and
// drives its busy line low after power-on, refresh and power-off, idling high
// otherwise, which matches the active-low panels.
//
// The busy line is scripted in reads, not time: every Read consumes one
// sample. Status display goes through Peek, which leaves the script alone.
type SimPanel struct {
	// BusyDelay is how many busy samples still read idle after a busy
	// command, before the line goes busy. Zero models a controller that
	// asserts busy as soon as the command is latched.
	BusyDelay int
	// BusyReads is how many busy samples then read low.
	BusyReads int
	// StatusByte is returned by the get-status read.
	StatusByte byte

	mu       sync.Mutex
	cs, dc   gpio.Level
	delayFor int
	busyFor  int
	last     byte
	log      []Transaction
	resets   int
}

// NewSimPanel returns a panel with both control lines idle.
func NewSimPanel() *SimPanel {
	return &SimPanel{BusyReads: 3, cs: gpio.High}
}

// Hardware exposes the sim as a backend.
func (s *SimPanel) Hardware() *Hardware {
	return &Hardware{
		Conn: s,
		CS:   simLine{s, &s.cs},
		DC:   simLine{s, &s.dc},
		RST:  simReset{s},
		Busy: s,
	}
}

// Tx records w as one transaction. The bus-select line must be low.
func (s *SimPanel) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cs != gpio.Low {
		return nil
	}
	for _, v := range w {
		cmd := s.dc == gpio.Low
		s.log = append(s.log, Transaction{Command: cmd, Value: v})
		if cmd {
			s.last = v
			switch v {
			case powerOn, displayRefresh, powerOff:
				s.delayFor = s.BusyDelay
				s.busyFor = s.BusyReads
			}
		}
	}
	if len(r) > 0 && s.last == getStatus {
		r[0] = s.StatusByte
	}
	return nil
}

// Read implements InputLine for the busy line.
func (s *SimPanel) Read() gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delayFor > 0 {
		s.delayFor--
		return gpio.High
	}
	if s.busyFor > 0 {
		s.busyFor--
		return gpio.Low
	}
	return gpio.High
}

// Peek implements LevelPeeker: the level Read would return, without
// consuming a sample.
func (s *SimPanel) Peek() gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delayFor == 0 && s.busyFor > 0 {
		return gpio.Low
	}
	return gpio.High
}

// Transactions returns a copy of everything framed so far.
func (s *SimPanel) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transaction(nil), s.log...)
}

// Commands returns the command bytes framed so far, in order.
func (s *SimPanel) Commands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, t := range s.log {
		if t.Command {
			out = append(out, t.Value)
		}
	}
	return out
}

// Resets is the number of completed reset pulses.
func (s *SimPanel) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Clear drops the recorded transactions.
func (s *SimPanel) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

type simLine struct {
	s *SimPanel
	l *gpio.Level
}

func (l simLine) Out(v gpio.Level) error {
	l.s.mu.Lock()
	*l.l = v
	l.s.mu.Unlock()
	return nil
}

type simReset struct{ s *SimPanel }

func (r simReset) Out(v gpio.Level) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v == gpio.High {
		r.s.resets++
		r.s.delayFor = 0
		r.s.busyFor = 0
	}
	return nil
}
