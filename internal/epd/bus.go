package epd

import (
	"periph.io/x/conn/v3/gpio"
)

// Transferer is one synchronous full-duplex bus transfer. periph's spi.Conn
// satisfies it.
type Transferer interface {
	Tx(w, r []byte) error
}

// OutputLine is a digital control line driven by the host. periph's
// gpio.PinOut satisfies it.
type OutputLine interface {
	Out(l gpio.Level) error
}

// InputLine is a digital line sampled by the host. periph's gpio.PinIn
// satisfies it.
type InputLine interface {
	Read() gpio.Level
}

// LevelPeeker is implemented by input lines whose Read has side effects.
// Peek reports the current level without them.
type LevelPeeker interface {
	Peek() gpio.Level
}

// Bus frames single bytes as command or data transactions. Every byte is its
// own transaction: the controller latches the data/command line per byte.
type Bus struct {
	c  Transferer
	cs OutputLine
	dc OutputLine
}

// NewBus wires a transfer function to its bus-select and data/command lines.
func NewBus(c Transferer, cs, dc OutputLine) *Bus {
	return &Bus{c: c, cs: cs, dc: dc}
}

// WriteCommand sends one command byte (data/command line low).
func (b *Bus) WriteCommand(cmd byte) error {
	return b.frame(gpio.Low, []byte{cmd}, nil)
}

// WriteData sends one data byte (data/command line high).
func (b *Bus) WriteData(d byte) error {
	return b.frame(gpio.High, []byte{d}, nil)
}

// WriteDataBytes sends p as consecutive single-byte data transactions.
func (b *Bus) WriteDataBytes(p []byte) error {
	for _, v := range p {
		if err := b.WriteData(v); err != nil {
			return err
		}
	}
	return nil
}

// ReadData clocks out a dummy byte in data mode and returns what the
// controller shifted back.
func (b *Bus) ReadData() (byte, error) {
	rx := make([]byte, 1)
	if err := b.frame(gpio.High, []byte{0x00}, rx); err != nil {
		return 0, err
	}
	return rx[0], nil
}

func (b *Bus) frame(dc gpio.Level, w, r []byte) error {
	eh := errorHandler{}
	eh.out(b.dc, dc)
	eh.out(b.cs, gpio.Low)
	eh.tx(b.c, w, r)

	// Bus-select returns to its idle level even after a failed transfer.
	if err := b.cs.Out(gpio.High); err != nil && eh.err == nil {
		eh.err = err
	}
	return eh.err
}

// errorHandler is a wrapper for error management.
type errorHandler struct {
	err error
}

func (eh *errorHandler) out(l OutputLine, v gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = l.Out(v)
}

func (eh *errorHandler) tx(c Transferer, w, r []byte) {
	if eh.err != nil {
		return
	}
	eh.err = c.Tx(w, r)
}
