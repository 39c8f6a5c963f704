package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
)

// Backends accepted in Config.Backend.
const (
	BackendPeriph = epd.BackendPeriph
	BackendRPIO   = epd.BackendRPIO
	BackendSim    = epd.BackendSim
)

// HardwareConfig names the SPI port and control lines.
type HardwareConfig struct {
	SPIPort    string `yaml:"spi_port" json:"spi_port"`
	SPISpeedHz int64  `yaml:"spi_speed_hz" json:"spi_speed_hz"`
	CS         string `yaml:"cs" json:"cs"`
	DC         string `yaml:"dc" json:"dc"`
	RST        string `yaml:"rst" json:"rst"`
	Busy       string `yaml:"busy" json:"busy"`
}

// PanelSection picks a known variant, optionally with a different geometry.
type PanelSection struct {
	Variant string `yaml:"variant" json:"variant"`
	// Width, Height and Resolution override the variant when set.
	Width      int    `yaml:"width,omitempty" json:"width,omitempty"`
	Height     int    `yaml:"height,omitempty" json:"height,omitempty"`
	Resolution string `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	// Accent allocates a second plane for tri-color panels.
	Accent bool `yaml:"accent" json:"accent"`
}

// TimingConfig holds protocol delays.
type TimingConfig struct {
	ResetPulse      time.Duration `yaml:"reset_pulse" json:"reset_pulse"`
	RefreshSettle   time.Duration `yaml:"refresh_settle" json:"refresh_settle"`
	DeepSleepSettle time.Duration `yaml:"deep_sleep_settle" json:"deep_sleep_settle"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// RenderConfig is the initial driver context.
type RenderConfig struct {
	Transpose bool `yaml:"transpose" json:"transpose"`
	Invert    bool `yaml:"invert" json:"invert"`
	// Order is "old-first" (0x10 then 0x13) or "new-first".
	Order string `yaml:"order" json:"order"`
	// OldFill is the synthetic previous-image byte, 0-255.
	OldFill int `yaml:"old_fill" json:"old_fill"`
}

// LEDConfig selects the status indicator.
type LEDConfig struct {
	// Mode is "console" or "none".
	Mode string `yaml:"mode" json:"mode"`
}

// StatusConfig drives the status server and the scheduled jobs.
type StatusConfig struct {
	// Listen is the HTTP listen address; empty disables the server.
	Listen string `yaml:"listen" json:"listen"`
	// AutoCron is the schedule of the periodic status line while auto
	// status is on.
	AutoCron string `yaml:"auto_cron" json:"auto_cron"`
	// ConditionCron, if set, runs the anti-ghosting cycle on a schedule.
	ConditionCron string `yaml:"condition_cron,omitempty" json:"condition_cron,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Backend is "periph", "rpio" or "sim".
	Backend  string         `yaml:"backend" json:"backend"`
	Hardware HardwareConfig `yaml:"hardware" json:"hardware"`
	Panel    PanelSection   `yaml:"panel" json:"panel"`
	Timing   TimingConfig   `yaml:"timing" json:"timing"`
	Render   RenderConfig   `yaml:"render" json:"render"`
	LED      LEDConfig      `yaml:"led" json:"led"`
	Status   StatusConfig   `yaml:"status" json:"status"`

	// LogLevel is DEBUG, INFO, WARN or ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// DataDebug logs plane hashes and histograms on every push.
	DataDebug bool `yaml:"data_debug" json:"data_debug"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	hw := epd.DefaultHWConfig()
	t := epd.DefaultTiming()
	return &Config{
		Backend: BackendPeriph,
		Hardware: HardwareConfig{
			SPIPort:    hw.SPIPort,
			SPISpeedHz: hw.SPISpeedHz,
			CS:         hw.CS,
			DC:         hw.DC,
			RST:        hw.RST,
			Busy:       hw.Busy,
		},
		Panel: PanelSection{Variant: epd.DefaultVariant},
		Timing: TimingConfig{
			ResetPulse:      t.ResetPulse,
			RefreshSettle:   t.RefreshSettle,
			DeepSleepSettle: t.DeepSleepSettle,
			BusyTimeout:     t.BusyTimeout,
		},
		Render:   RenderConfig{Order: epd.OldFirst.String(), OldFill: 0x00},
		LED:      LEDConfig{Mode: "console"},
		Status:   StatusConfig{Listen: "127.0.0.1:8080", AutoCron: "@every 1s"},
		LogLevel: "INFO",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendPeriph, BackendRPIO, BackendSim:
	default:
		c.Backend = def.Backend
	}

	if c.Hardware.SPISpeedHz <= 0 {
		c.Hardware.SPISpeedHz = def.Hardware.SPISpeedHz
	}
	if c.Hardware.CS == "" {
		c.Hardware.CS = def.Hardware.CS
	}
	if c.Hardware.DC == "" {
		c.Hardware.DC = def.Hardware.DC
	}
	if c.Hardware.RST == "" {
		c.Hardware.RST = def.Hardware.RST
	}
	if c.Hardware.Busy == "" {
		c.Hardware.Busy = def.Hardware.Busy
	}

	if c.Panel.Variant == "" {
		c.Panel.Variant = def.Panel.Variant
	}

	if c.Timing.ResetPulse <= 0 {
		c.Timing.ResetPulse = def.Timing.ResetPulse
	}
	if c.Timing.RefreshSettle <= 0 {
		c.Timing.RefreshSettle = def.Timing.RefreshSettle
	}
	if c.Timing.DeepSleepSettle <= 0 {
		c.Timing.DeepSleepSettle = def.Timing.DeepSleepSettle
	}
	if c.Timing.BusyTimeout <= 0 {
		c.Timing.BusyTimeout = def.Timing.BusyTimeout
	}

	if _, err := epd.ParseOrder(c.Render.Order); err != nil || c.Render.Order == "" {
		c.Render.Order = def.Render.Order
	}
	if c.Render.OldFill < 0 || c.Render.OldFill > 0xFF {
		c.Render.OldFill = def.Render.OldFill
	}

	switch c.LED.Mode {
	case "console", "none":
	default:
		c.LED.Mode = def.LED.Mode
	}

	if c.Status.AutoCron == "" {
		c.Status.AutoCron = def.Status.AutoCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// PanelConfig resolves the variant and applies geometry overrides.
func (c *Config) PanelConfig() (epd.PanelConfig, error) {
	pc, err := epd.LookupVariant(c.Panel.Variant)
	if err != nil {
		return epd.PanelConfig{}, err
	}
	w, h, enc := pc.Width, pc.Height, pc.Resolution
	if c.Panel.Width > 0 {
		w = c.Panel.Width
	}
	if c.Panel.Height > 0 {
		h = c.Panel.Height
	}
	if c.Panel.Resolution != "" {
		if enc, err = epd.ParseResolutionEncoding(c.Panel.Resolution); err != nil {
			return epd.PanelConfig{}, err
		}
	}
	pc = pc.WithGeometry(w, h, enc)
	if err := pc.Validate(); err != nil {
		return epd.PanelConfig{}, err
	}
	return pc, nil
}

// HWConfig converts the hardware section for the backends.
func (c *Config) HWConfig() epd.HWConfig {
	return epd.HWConfig{
		SPIPort:    c.Hardware.SPIPort,
		SPISpeedHz: c.Hardware.SPISpeedHz,
		CS:         c.Hardware.CS,
		DC:         c.Hardware.DC,
		RST:        c.Hardware.RST,
		Busy:       c.Hardware.Busy,
	}
}

// DriverTiming converts the timing section.
func (c *Config) DriverTiming() epd.Timing {
	return epd.Timing{
		ResetPulse:      c.Timing.ResetPulse,
		RefreshSettle:   c.Timing.RefreshSettle,
		DeepSleepSettle: c.Timing.DeepSleepSettle,
		BusyTimeout:     c.Timing.BusyTimeout,
	}
}

// Context builds the initial driver context from the render section.
func (r RenderConfig) Context() (epd.DriverContext, error) {
	order, err := epd.ParseOrder(r.Order)
	if err != nil {
		return epd.DriverContext{}, err
	}
	if r.OldFill < 0 || r.OldFill > 0xFF {
		return epd.DriverContext{}, fmt.Errorf("config: old_fill %d out of range", r.OldFill)
	}
	return epd.DriverContext{
		Orientation: framebuf.Orientation{Transpose: r.Transpose, Invert: r.Invert},
		Push:        epd.PushOptions{Order: order, OldFill: byte(r.OldFill)},
	}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically via a temp file + rename, with
// 0600 permissions and a 0700 parent directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdpanel-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
