package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"epdpanel/internal/calib"
	"epdpanel/internal/config"
	"epdpanel/internal/dispatch"
	"epdpanel/internal/epd"
	appLog "epdpanel/internal/log"
)

type flagConfig struct {
	configPath string
	backend    string
	sweeps     string
	dryRun     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	if flags.backend != "" {
		conf.Backend = flags.backend
	}
	if flags.dryRun {
		conf.Backend = epd.BackendSim
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	panel, err := conf.PanelConfig()
	if err != nil {
		appLog.Error("invalid panel config", err)
		return 1
	}
	dctx, err := conf.Render.Context()
	if err != nil {
		appLog.Error("invalid render config", err)
		return 1
	}

	names, err := sweepNames(flags.sweeps)
	if err != nil {
		appLog.Error("invalid -sweep", err)
		return 2
	}

	var clock epd.Clock = epd.RealClock
	var hw *epd.Hardware
	var sim *epd.SimPanel
	if flags.dryRun {
		sim = epd.NewSimPanel()
		hw = sim.Hardware()
		clock = &virtualClock{}
	} else {
		hw, err = epd.Open(conf.Backend, conf.HWConfig())
		if err != nil {
			appLog.Error("failed to open hardware", err, "backend", conf.Backend)
			return 1
		}
	}
	defer hw.Close()

	drv := epd.NewFromHardware(hw, epd.Options{Clock: clock, Timing: conf.DriverTiming()})
	session, err := dispatch.NewSession(drv, panel, conf.Panel.Accent, dctx, dispatch.Options{
		Clock:     clock,
		DataDebug: conf.DataDebug,
	})
	if err != nil {
		appLog.Error("failed to create session", err)
		return 1
	}

	failed := 0
	for _, name := range names {
		attempts, err := calib.Attempts(name, panel, dctx)
		if err != nil {
			appLog.Error("unknown sweep", err)
			return 2
		}
		results := calib.Run(session, name, attempts)
		fmt.Printf("== %s\n%s", name, calib.Summary(results))
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
	}

	if err := session.Sleep(); err != nil {
		appLog.Error("failed to put panel to sleep", err)
	}
	if sim != nil {
		fmt.Printf("dry run: %d framed bytes, %d commands, %d resets\n",
			len(sim.Transactions()), len(sim.Commands()), sim.Resets())
	}
	if failed > 0 {
		appLog.Warn("calibration finished with failures", "failed", failed)
		return 1
	}
	return 0
}

// sweepNames expands a comma separated list; "all" selects every sweep.
func sweepNames(s string) ([]string, error) {
	if s == "" || s == "all" {
		return calib.Names(), nil
	}
	var out []string
	for _, n := range strings.Split(s, ",") {
		n = strings.ToLower(strings.TrimSpace(n))
		if _, ok := calib.Builders[n]; !ok {
			return nil, fmt.Errorf("unknown sweep %q (known: %s)", n, strings.Join(calib.Names(), ", "))
		}
		out = append(out, n)
	}
	return out, nil
}

// virtualClock advances only when slept on, so dry runs finish without
// waiting while timeouts still expire.
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdpanel/config.yaml", "Path to config file")
	flag.StringVar(&cfg.backend, "backend", "", "Hardware backend: periph, rpio or sim (overrides config if set)")
	flag.StringVar(&cfg.sweeps, "sweep", "all", "Comma separated sweeps: "+strings.Join(calib.Names(), ", ")+" or all")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Run against the in-memory panel with no delays")

	flag.Parse()

	return cfg
}
