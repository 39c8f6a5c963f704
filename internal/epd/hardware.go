package epd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// HWConfig names the bus and the four control lines. Pin names use the
// periph registry form ("GPIO8"); the rpio backend accepts the same names.
type HWConfig struct {
	SPIPort    string
	SPISpeedHz int64
	CS         string
	DC         string
	RST        string
	Busy       string
}

// DefaultHWConfig is the usual Raspberry Pi HAT wiring.
func DefaultHWConfig() HWConfig {
	return HWConfig{
		SPIPort:    "",
		SPISpeedHz: 2_000_000,
		CS:         "GPIO8",
		DC:         "GPIO25",
		RST:        "GPIO17",
		Busy:       "GPIO24",
	}
}

// Hardware is an opened backend.
type Hardware struct {
	Conn Transferer
	CS   OutputLine
	DC   OutputLine
	RST  OutputLine
	Busy InputLine

	closer func() error
}

// Close releases the bus.
func (h *Hardware) Close() error {
	if h == nil || h.closer == nil {
		return nil
	}
	return h.closer()
}

// OpenPeriph opens the SPI port and control lines through periph.io. Bus
// select is driven as a plain GPIO so each byte can be framed on its own.
func OpenPeriph(cfg HWConfig) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: periph host init: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("epd: open spi port %q: %w", cfg.SPIPort, err)
	}
	hz := cfg.SPISpeedHz
	if hz <= 0 {
		hz = DefaultHWConfig().SPISpeedHz
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: connect spi: %w", err)
	}

	hw := &Hardware{Conn: conn, closer: port.Close}
	eh := errorHandler{}
	hw.CS = periphOut(&eh, cfg.CS, gpio.High)
	hw.DC = periphOut(&eh, cfg.DC, gpio.Low)
	hw.RST = periphOut(&eh, cfg.RST, gpio.High)
	hw.Busy = periphIn(&eh, cfg.Busy)
	if eh.err != nil {
		_ = port.Close()
		return nil, eh.err
	}
	return hw, nil
}

func periphOut(eh *errorHandler, name string, initial gpio.Level) gpio.PinOut {
	if eh.err != nil {
		return nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		eh.err = fmt.Errorf("epd: gpio %s not found", name)
		return nil
	}
	if err := p.Out(initial); err != nil {
		eh.err = fmt.Errorf("epd: gpio %s out: %w", name, err)
		return nil
	}
	return p
}

func periphIn(eh *errorHandler, name string) gpio.PinIn {
	if eh.err != nil {
		return nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		eh.err = fmt.Errorf("epd: gpio %s not found", name)
		return nil
	}
	// No pull: the idle level of the line is what polarity detection reads.
	if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
		eh.err = fmt.Errorf("epd: gpio %s in: %w", name, err)
		return nil
	}
	return p
}

var errBadPinName = errors.New("epd: pin name must be GPIO<n> or <n>")

// bcmNumber parses "GPIO17" or "17".
func bcmNumber(name string) (int, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "GPIO")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 53 {
		return 0, fmt.Errorf("%w: %q", errBadPinName, name)
	}
	return n, nil
}

// Backend names accepted by Open.
const (
	BackendPeriph = "periph"
	BackendRPIO   = "rpio"
	BackendSim    = "sim"
)

// Open opens the named backend. The sim backend ignores cfg.
func Open(backend string, cfg HWConfig) (*Hardware, error) {
	switch backend {
	case BackendPeriph:
		return OpenPeriph(cfg)
	case BackendRPIO:
		return OpenRPIO(cfg)
	case BackendSim:
		return NewSimPanel().Hardware(), nil
	}
	return nil, fmt.Errorf("epd: unknown backend %q", backend)
}
