package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epdpanel/internal/config"
	"epdpanel/internal/dispatch"
	"epdpanel/internal/epd"
	"epdpanel/internal/led"
	appLog "epdpanel/internal/log"
	"epdpanel/internal/metrics"
	"epdpanel/internal/schedule"
	"epdpanel/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	backend    string
	once       bool
	dumpDir    string
}

func main() {
	os.Exit(run())
}

func run() int {
	appLog.Info("epdpanel starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	if flags.listen != "" {
		conf.Status.Listen = flags.listen
	}
	if flags.backend != "" {
		conf.Backend = flags.backend
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	panel, err := conf.PanelConfig()
	if err != nil {
		appLog.Error("invalid panel config", err, "variant", conf.Panel.Variant)
		return 1
	}
	dctx, err := conf.Render.Context()
	if err != nil {
		appLog.Error("invalid render config", err)
		return 1
	}

	appLog.Info("effective config",
		"backend", conf.Backend,
		"spi", conf.Hardware.SPIPort,
		"spi_hz", conf.Hardware.SPISpeedHz,
		"panel", panel.Name,
		"width", panel.Width,
		"height", panel.Height,
		"resolution", panel.Resolution,
		"accent", conf.Panel.Accent,
		"orientation", dctx.Orientation,
		"order", dctx.Push.Order,
		"listen", conf.Status.Listen,
		"once", flags.once,
		"dump", flags.dumpDir,
	)

	hw, err := epd.Open(conf.Backend, conf.HWConfig())
	if err != nil {
		appLog.Error("failed to open hardware", err, "backend", conf.Backend)
		return 1
	}
	defer hw.Close()

	var ind led.Indicator = led.Nop{}
	if conf.LED.Mode == "console" {
		console := led.NewConsole()
		defer console.Halt()
		ind = console
	}
	if err := led.SelfTest(ind, epd.RealClock); err != nil {
		appLog.Warn("indicator self test failed", "err", err)
	}

	m := metrics.New()
	drv := epd.NewFromHardware(hw, epd.Options{
		Timing:   conf.DriverTiming(),
		Observer: epd.Observers{m, led.Milestones{Indicator: ind}},
	})

	opts := dispatch.Options{
		Indicator: ind,
		Out:       os.Stdout,
		DataDebug: conf.DataDebug,
	}
	if flags.dumpDir != "" {
		opts.OnPush = dumper(flags.dumpDir)
	}
	session, err := dispatch.NewSession(drv, panel, conf.Panel.Accent, dctx, opts)
	if err != nil {
		appLog.Error("failed to create session", err)
		return 1
	}

	if flags.once {
		return runOnce(session)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	sched, err := schedule.New(session, schedule.Jobs{
		AutoStatus: conf.Status.AutoCron,
		Condition:  conf.Status.ConditionCron,
	})
	if err != nil {
		appLog.Error("invalid schedule", err)
		return 1
	}
	sched.Start()

	disp := dispatch.NewDispatcher(session)

	if conf.Status.Listen != "" {
		srv := web.NewServer(conf, session, disp, m.Handler())
		go func() {
			if err := web.Serve(ctx, conf.Status.Listen, srv.Handler()); err != nil {
				appLog.Error("HTTP server failed", err, "listen", conf.Status.Listen)
			}
		}()
	}

	go func() {
		if err := disp.Run(ctx, os.Stdin, os.Stdout); err != nil {
			appLog.Error("console input failed", err)
		}
		appLog.Debug("console input closed")
	}()

	<-ctx.Done()

	<-sched.Stop().Done()
	if err := session.Sleep(); err != nil {
		appLog.Error("failed to put panel to sleep", err)
	}
	// Let the HTTP server finish its shutdown log line.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("epdpanel exiting")
	return 0
}

// runOnce initialises the panel, runs the conditioning cycle, sleeps the
// controller and returns the exit code.
func runOnce(s *dispatch.Session) int {
	if err := s.Init(s.Base()); err != nil {
		appLog.Error("init failed", err)
		return 1
	}
	if err := s.Condition(); err != nil {
		appLog.Error("conditioning failed", err)
		return 1
	}
	appLog.Info("once cycle done", "status", s.Snapshot().LastWait)
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdpanel/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.backend, "backend", "", "Hardware backend: periph, rpio or sim (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Init, run one conditioning cycle, deep sleep and exit")
	flag.StringVar(&cfg.dumpDir, "dump", "", "Directory for debug artifacts written after every push (black.bin, accent.bin, preview.png)")

	flag.Parse()

	return cfg
}
