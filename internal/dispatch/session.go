// Package dispatch owns the single driver instance. Session serialises every
// path to the panel (console commands, scheduled jobs, HTTP handlers) and
// Dispatcher turns text commands into session calls.
package dispatch

import (
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"epdpanel/internal/convert"
	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
	"epdpanel/internal/led"
	appLog "epdpanel/internal/log"
)

// Options configures a Session.
type Options struct {
	Clock epd.Clock
	// Indicator is stepped by Tick while auto status is on.
	Indicator led.Indicator
	// Out receives the periodic status lines.
	Out io.Writer
	// DataDebug logs plane hashes and histograms on every push.
	DataDebug bool
	// OnPush, if set, is called after every push with the pushed buffer.
	// It runs with the session locked and must not call back into it.
	OnPush func(fb *framebuf.Buffer, rep epd.PushReport)
}

// Session wraps the driver, the frame buffer and the driver context.
type Session struct {
	mu sync.Mutex

	drv    *epd.Driver
	base   epd.PanelConfig
	cur    epd.PanelConfig
	accent bool
	fb     *framebuf.Buffer
	ctx    epd.DriverContext

	clock  epd.Clock
	cycle  *led.Cycle
	out    io.Writer
	onPush func(fb *framebuf.Buffer, rep epd.PushReport)

	autoStatus bool
	dataDebug  bool
	pushes     int
	last       epd.PushReport
}

// NewSession returns a session that initialises drv with panel on first use.
func NewSession(drv *epd.Driver, panel epd.PanelConfig, accent bool, ctx epd.DriverContext, opts Options) (*Session, error) {
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	fb, err := newBuffer(panel, accent)
	if err != nil {
		return nil, err
	}
	fb.SetOrientation(ctx.Orientation)

	clock := opts.Clock
	if clock == nil {
		clock = epd.RealClock
	}
	ind := opts.Indicator
	if ind == nil {
		ind = led.Nop{}
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Session{
		drv:       drv,
		base:      panel,
		cur:       panel,
		accent:    accent,
		fb:        fb,
		ctx:       ctx,
		clock:     clock,
		cycle:     led.NewCycle(ind),
		out:       out,
		onPush:    opts.OnPush,
		dataDebug: opts.DataDebug,
	}, nil
}

func newBuffer(panel epd.PanelConfig, accent bool) (*framebuf.Buffer, error) {
	planes := 1
	if accent {
		planes = 2
	}
	return framebuf.New(panel.Width, panel.Height, planes)
}

// Base returns the configured panel, the one used by lazy init and reinit.
func (s *Session) Base() epd.PanelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Context returns the current driver context.
func (s *Session) Context() epd.DriverContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// SetContext replaces the driver context. It waits for any running refresh
// cycle, so the change lands between cycles.
func (s *Session) SetContext(ctx epd.DriverContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setContext(ctx)
}

// UpdateContext applies fn to the driver context and returns the result.
func (s *Session) UpdateContext(fn func(ctx *epd.DriverContext)) epd.DriverContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.ctx
	fn(&ctx)
	s.setContext(ctx)
	return ctx
}

func (s *Session) setContext(ctx epd.DriverContext) {
	s.ctx = ctx
	s.fb.SetOrientation(ctx.Orientation)
	appLog.Info("driver context", "orientation", ctx.Orientation, "order", ctx.Push.Order, "old_fill", fmt.Sprintf("%02X", ctx.Push.OldFill))
}

// ToggleAutoStatus flips the periodic status line and returns the new value.
func (s *Session) ToggleAutoStatus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoStatus = !s.autoStatus
	return s.autoStatus
}

// ToggleDataDebug flips push diagnostics logging and returns the new value.
func (s *Session) ToggleDataDebug() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataDebug = !s.dataDebug
	return s.dataDebug
}

// Init resets and configures the controller with cfg. The frame buffer is
// reallocated when the geometry changes.
func (s *Session) Init(cfg epd.PanelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.init(cfg)
}

// Reinit adopts ctx and initialises with cfg.
func (s *Session) Reinit(cfg epd.PanelConfig, ctx epd.DriverContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.init(cfg); err != nil {
		return err
	}
	s.setContext(ctx)
	return nil
}

func (s *Session) init(cfg epd.PanelConfig) error {
	if err := s.drv.Init(cfg); err != nil {
		return err
	}
	if cfg.Width != s.fb.Width() || cfg.Height != s.fb.Height() {
		fb, err := newBuffer(cfg, s.accent)
		if err != nil {
			return err
		}
		fb.SetOrientation(s.ctx.Orientation)
		s.fb = fb
	}
	s.cur = cfg
	return nil
}

// ensureInit brings the controller up with the last used panel when it is
// not awake.
func (s *Session) ensureInit() error {
	if s.drv.State().Awake() {
		return nil
	}
	return s.init(s.cur)
}

// Show clears the buffer, lets draw paint it and pushes it with the current
// context.
func (s *Session) Show(draw func(fb *framebuf.Buffer) error) (epd.PushReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.show(s.ctx.Push, draw)
}

// ShowWith is Show with explicit push options for this one push.
func (s *Session) ShowWith(opts epd.PushOptions, draw func(fb *framebuf.Buffer) error) (epd.PushReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.show(opts, draw)
}

func (s *Session) show(opts epd.PushOptions, draw func(fb *framebuf.Buffer) error) (epd.PushReport, error) {
	if err := s.ensureInit(); err != nil {
		return epd.PushReport{}, err
	}
	s.fb.Clear(0xFF)
	if draw != nil {
		if err := draw(s.fb); err != nil {
			return epd.PushReport{}, err
		}
	}
	return s.push(opts)
}

// Draw paints into the buffer without pushing it.
func (s *Session) Draw(draw func(fb *framebuf.Buffer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return draw(s.fb)
}

// Push sends the buffer as it is.
func (s *Session) Push() (epd.PushReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInit(); err != nil {
		return epd.PushReport{}, err
	}
	return s.push(s.ctx.Push)
}

func (s *Session) push(opts epd.PushOptions) (epd.PushReport, error) {
	rep, err := s.drv.Push(s.fb, opts)
	if err != nil {
		return rep, err
	}
	s.pushes++
	s.last = rep
	if s.dataDebug {
		appLog.Info("push data",
			"order", rep.Order,
			"old_fill", fmt.Sprintf("%02X", rep.OldFill),
			"old_hash", fmt.Sprintf("%08X", rep.OldHash),
			"new_hash", fmt.Sprintf("%08X", rep.NewHash),
			"histogram", rep.Histogram(6),
			"sample", rep.SampleHex(),
		)
	}
	if s.onPush != nil {
		s.onPush(s.fb, rep)
	}
	return rep, nil
}

// Refresh triggers a refresh of what the controller already holds.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInit(); err != nil {
		return err
	}
	return s.drv.RefreshTrigger()
}

// Sleep puts the controller into deep sleep. It does nothing when the
// controller is not awake.
func (s *Session) Sleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drv.State().Awake() {
		return nil
	}
	return s.drv.DeepSleep()
}

// ReadStatus reads the controller status register.
func (s *Session) ReadStatus() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.ReadStatusRegister()
}

// Pause sleeps without holding the session.
func (s *Session) Pause(d time.Duration) {
	s.clock.Sleep(d)
}

// StatusLine samples the busy line and the status register.
func (s *Session) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLine()
}

func (s *Session) statusLine() string {
	st := s.drv.Status()
	line := fmt.Sprintf("status: state=%s busy=%s", st.State, st.BusyLevel)
	if !st.State.Awake() {
		return line + " reg=n/a"
	}
	reg, err := s.drv.ReadStatusRegister()
	if err != nil {
		return line + " reg=n/a"
	}
	return fmt.Sprintf("%s reg=0x%02X", line, reg)
}

// Tick prints a status line and steps the indicator while auto status is on.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.autoStatus {
		return
	}
	fmt.Fprintln(s.out, s.statusLine())
	if err := s.cycle.Next(); err != nil {
		appLog.Debug("indicator cycle failed", "err", err)
	}
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	State         string `json:"state"`
	Panel         string `json:"panel"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Accent        bool   `json:"accent"`
	BusyLevel     string `json:"busy_level"`
	BusyKnown     bool   `json:"busy_polarity_known"`
	BusyActive    string `json:"busy_active_level,omitempty"`
	BusyTimeouts  int    `json:"busy_timeouts"`
	LastWait      string `json:"last_wait"`
	LastWaitMS    int64  `json:"last_wait_ms"`
	Transpose     bool   `json:"transpose"`
	Invert        bool   `json:"invert"`
	Order         string `json:"order"`
	OldFill       string `json:"old_fill"`
	AutoStatus    bool   `json:"auto_status"`
	DataDebug     bool   `json:"data_debug"`
	Pushes        int    `json:"pushes"`
	LastNewHash   string `json:"last_new_hash,omitempty"`
	LastHistogram string `json:"last_histogram,omitempty"`
}

// Snapshot reports the session state without bus traffic.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.drv.Status()
	snap := Snapshot{
		State:        st.State.String(),
		Panel:        s.cur.Name,
		Width:        s.fb.Width(),
		Height:       s.fb.Height(),
		Accent:       s.fb.HasAccent(),
		BusyLevel:    st.BusyLevel.String(),
		BusyKnown:    st.Busy.PolarityKnown,
		BusyTimeouts: st.Busy.Timeouts,
		LastWait:     st.Busy.LastWait.Outcome.String(),
		LastWaitMS:   st.Busy.LastWait.Elapsed.Milliseconds(),
		Transpose:    s.ctx.Orientation.Transpose,
		Invert:       s.ctx.Orientation.Invert,
		Order:        s.ctx.Push.Order.String(),
		OldFill:      fmt.Sprintf("%02X", s.ctx.Push.OldFill),
		AutoStatus:   s.autoStatus,
		DataDebug:    s.dataDebug,
		Pushes:       s.pushes,
	}
	if st.Busy.PolarityKnown {
		snap.BusyActive = st.Busy.ActiveLevel.String()
	}
	if s.pushes > 0 {
		snap.LastNewHash = fmt.Sprintf("%08X", s.last.NewHash)
		snap.LastHistogram = s.last.Histogram(6)
	}
	return snap
}

// Preview renders a copy of the buffer.
func (s *Session) Preview(scale int) image.Image {
	s.mu.Lock()
	fb := s.fb.Clone()
	s.mu.Unlock()
	return convert.Preview(fb, scale)
}

// WriteANSI draws a copy of the buffer on a terminal.
func (s *Session) WriteANSI(w io.Writer, step int) error {
	s.mu.Lock()
	fb := s.fb.Clone()
	s.mu.Unlock()
	return convert.WriteANSI(w, fb, step)
}
