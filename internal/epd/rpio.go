package epd

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
)

// OpenRPIO opens SPI0 and the control lines through memory mapped GPIO. It is
// the fallback for hosts where periph's spidev driver is unavailable.
func OpenRPIO(cfg HWConfig) (*Hardware, error) {
	pins := make([]rpio.Pin, 0, 4)
	for _, name := range []string{cfg.CS, cfg.DC, cfg.RST, cfg.Busy} {
		n, err := bcmNumber(name)
		if err != nil {
			return nil, err
		}
		pins = append(pins, rpio.Pin(n))
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("epd: rpio open: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		_ = rpio.Close()
		return nil, fmt.Errorf("epd: rpio spi begin: %w", err)
	}
	hz := cfg.SPISpeedHz
	if hz <= 0 {
		hz = DefaultHWConfig().SPISpeedHz
	}
	rpio.SpiSpeed(int(hz))
	rpio.SpiMode(0, 0)

	cs, dc, rst, busy := pins[0], pins[1], pins[2], pins[3]
	cs.Output()
	cs.High()
	dc.Output()
	dc.Low()
	rst.Output()
	rst.High()
	busy.Input()
	busy.PullOff()

	return &Hardware{
		Conn: rpioSPI{},
		CS:   rpioPin(cs),
		DC:   rpioPin(dc),
		RST:  rpioPin(rst),
		Busy: rpioPin(busy),
		closer: func() error {
			rpio.SpiEnd(rpio.Spi0)
			return rpio.Close()
		},
	}, nil
}

type rpioSPI struct{}

// Tx exchanges w in place on SPI0 and copies the received bytes into r.
func (rpioSPI) Tx(w, r []byte) error {
	buf := append([]byte(nil), w...)
	rpio.SpiExchange(buf)
	copy(r, buf)
	return nil
}

type rpioPin rpio.Pin

func (p rpioPin) Out(l gpio.Level) error {
	if l {
		rpio.Pin(p).High()
	} else {
		rpio.Pin(p).Low()
	}
	return nil
}

func (p rpioPin) Read() gpio.Level {
	return rpio.Pin(p).Read() == rpio.High
}
