package epd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Commands of the UC8151-style controller family.
const (
	panelSetting      byte = 0x00
	powerSetting      byte = 0x01
	powerOff          byte = 0x02
	powerOn           byte = 0x04
	deepSleep         byte = 0x07
	dataStartOld      byte = 0x10
	displayRefresh    byte = 0x12
	dataStartNew      byte = 0x13
	vcomDataInterval  byte = 0x50
	resolutionSetting byte = 0x61
	getStatus         byte = 0x71

	deepSleepKey  byte = 0xA5
	vcomSleepMode byte = 0xF7
)

var (
	// ErrInvalidConfig is returned for a PanelConfig that cannot be sent to
	// the controller as described.
	ErrInvalidConfig = errors.New("invalid panel config")
	// ErrBufferSize is returned when a frame does not match the configured
	// geometry.
	ErrBufferSize = errors.New("frame size does not match panel geometry")
	// ErrInvalidState is returned when an operation is not allowed in the
	// driver's current lifecycle state.
	ErrInvalidState = errors.New("operation not allowed in current state")
)

// ResolutionEncoding selects how width and height are serialized in the
// resolution command. It is a property of the controller family.
type ResolutionEncoding int

const (
	// ThreeByte sends [width, height>>8, height&0xFF]. Width is a single
	// byte in this encoding.
	ThreeByte ResolutionEncoding = iota
	// FourByte sends [width>>8, width&0xFF, height>>8, height&0xFF].
	FourByte
)

func (e ResolutionEncoding) String() string {
	switch e {
	case ThreeByte:
		return "3-byte"
	case FourByte:
		return "4-byte"
	default:
		return fmt.Sprintf("ResolutionEncoding(%d)", int(e))
	}
}

// ParseResolutionEncoding accepts "3", "3-byte", "three", "4", "4-byte" or
// "four".
func ParseResolutionEncoding(s string) (ResolutionEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "3", "3-byte", "three", "threebyte":
		return ThreeByte, nil
	case "4", "4-byte", "four", "fourbyte":
		return FourByte, nil
	}
	return 0, fmt.Errorf("epd: unknown resolution encoding %q", s)
}

// PanelConfig describes one controller/panel combination. Values are never
// mutated after selection.
type PanelConfig struct {
	Name       string
	Width      int
	Height     int
	Power      [5]byte
	Panel      [2]byte
	VCOM       byte
	Resolution ResolutionEncoding
}

// Validate checks the geometry against the resolution encoding. Width must be
// byte aligned because every plane row is width/8 bytes.
func (c PanelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("epd: %s: %dx%d: %w", c.Name, c.Width, c.Height, ErrInvalidConfig)
	}
	if c.Width%8 != 0 {
		return fmt.Errorf("epd: %s: width %d is not a multiple of 8: %w", c.Name, c.Width, ErrInvalidConfig)
	}
	switch c.Resolution {
	case ThreeByte:
		if c.Width > 0xFF || c.Height > 0xFFFF {
			return fmt.Errorf("epd: %s: %dx%d exceeds 3-byte resolution range: %w", c.Name, c.Width, c.Height, ErrInvalidConfig)
		}
	case FourByte:
		if c.Width > 0xFFFF || c.Height > 0xFFFF {
			return fmt.Errorf("epd: %s: %dx%d exceeds 4-byte resolution range: %w", c.Name, c.Width, c.Height, ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("epd: %s: %v: %w", c.Name, c.Resolution, ErrInvalidConfig)
	}
	return nil
}

// EncodeResolution returns the payload of the resolution command.
func (c PanelConfig) EncodeResolution() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	w, h := uint16(c.Width), uint16(c.Height)
	if c.Resolution == ThreeByte {
		return []byte{byte(w), byte(h >> 8), byte(h)}, nil
	}
	return []byte{byte(w >> 8), byte(w), byte(h >> 8), byte(h)}, nil
}

// PlaneSize is the number of bytes in one full bit-plane.
func (c PanelConfig) PlaneSize() int {
	return c.Width / 8 * c.Height
}

// WithGeometry returns a copy with a different size, keeping the register
// values. Used when the same controller is probed in a rotated layout.
func (c PanelConfig) WithGeometry(width, height int, enc ResolutionEncoding) PanelConfig {
	c.Width, c.Height, c.Resolution = width, height, enc
	return c
}

// DefaultVariant is the reference sequence that produced a correct image on
// the 112x208 bring-up panel.
const DefaultVariant = "ref-112x208"

// Variants is the closed set of known panel configurations.
var Variants = []PanelConfig{
	{
		Name:       DefaultVariant,
		Width:      112,
		Height:     208,
		Power:      [5]byte{0x03, 0x00, 0x2B, 0x2B, 0x13},
		Panel:      [2]byte{0x1F, 0x0D},
		VCOM:       0x57,
		Resolution: ThreeByte,
	},
	{
		Name:       "a-296x160",
		Width:      296,
		Height:     160,
		Power:      [5]byte{0x03, 0x00, 0x2B, 0x2B, 0x09},
		Panel:      [2]byte{0xBF, 0x0D},
		VCOM:       0x77,
		Resolution: FourByte,
	},
	{
		Name:       "b-296x160",
		Width:      296,
		Height:     160,
		Power:      [5]byte{0x07, 0x00, 0x0F, 0x0F, 0x0D},
		Panel:      [2]byte{0x1F, 0x0D},
		VCOM:       0x57,
		Resolution: FourByte,
	},
	{
		Name:       "c-112x208",
		Width:      112,
		Height:     208,
		Power:      [5]byte{0x03, 0x00, 0x2B, 0x2B, 0x13},
		Panel:      [2]byte{0x1F, 0x0D},
		VCOM:       0x57,
		Resolution: FourByte,
	},
	{
		Name:       "d-112x208-vf7",
		Width:      112,
		Height:     208,
		Power:      [5]byte{0x03, 0x00, 0x2B, 0x2B, 0x13},
		Panel:      [2]byte{0x1F, 0x0D},
		VCOM:       0xF7,
		Resolution: FourByte,
	},
}

// LookupVariant finds a named configuration in Variants.
func LookupVariant(name string) (PanelConfig, error) {
	for _, v := range Variants {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return PanelConfig{}, fmt.Errorf("epd: unknown panel variant %q (known: %s): %w", name, strings.Join(VariantNames(), ", "), ErrInvalidConfig)
}

// VariantNames lists the known variant names, sorted.
func VariantNames() []string {
	names := make([]string, 0, len(Variants))
	for _, v := range Variants {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	return names
}
