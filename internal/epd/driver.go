// Package epd drives a UC8151-family e-paper controller over a command/data
// SPI bus: reset, power/panel/resolution setup, two-plane frame transfer,
// refresh and deep sleep.
//
// The driver is single-owner and performs no locking. Callers that share it
// between goroutines must serialise access themselves.
package epd

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"

	"epdpanel/internal/framebuf"
	appLog "epdpanel/internal/log"
)

const minDeepSleepSettle = 100 * time.Millisecond

// Timing holds the fixed delays of the protocol.
type Timing struct {
	// ResetPulse is held after each edge of the three reset pulses.
	ResetPulse time.Duration
	// RefreshSettle is waited after the refresh command before polling busy.
	RefreshSettle time.Duration
	// DeepSleepSettle is waited between power-off and deep sleep. Values
	// below 100 ms are raised to 100 ms.
	DeepSleepSettle time.Duration
	// BusyTimeout bounds every busy wait.
	BusyTimeout time.Duration
}

// DefaultTiming returns the delays used during bring-up.
func DefaultTiming() Timing {
	return Timing{
		ResetPulse:      25 * time.Millisecond,
		RefreshSettle:   100 * time.Millisecond,
		DeepSleepSettle: 150 * time.Millisecond,
		BusyTimeout:     DefaultBusyTimeout,
	}
}

// Order selects which plane is sent first in a push.
type Order int

const (
	OldFirst Order = iota
	NewFirst
)

func (o Order) String() string {
	if o == NewFirst {
		return "new-first"
	}
	return "old-first"
}

// ParseOrder accepts "old-first"/"10->13" and "new-first"/"13->10".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "old-first", "oldfirst", "old", "10->13":
		return OldFirst, nil
	case "new-first", "newfirst", "new", "13->10":
		return NewFirst, nil
	}
	return OldFirst, fmt.Errorf("epd: unknown push order %q", s)
}

// PushOptions controls the two-plane transfer.
type PushOptions struct {
	Order Order
	// OldFill is the synthetic "previous image" content of a mono push.
	OldFill byte
}

// DriverContext gathers every mode flag that shapes a refresh. It is changed
// only between refresh cycles.
type DriverContext struct {
	Orientation framebuf.Orientation
	Push        PushOptions
}

// Planes is the read side of a frame buffer.
type Planes interface {
	// Bytes is the black/white plane, 0 = black.
	Bytes() []byte
	// Accent is the optional second color plane, 0 = accent ink, or nil.
	Accent() []byte
}

// Options configures a Driver.
type Options struct {
	Clock    Clock
	Timing   Timing
	Observer Observer
}

// Driver is the panel controller state machine.
type Driver struct {
	bus    *Bus
	rst    OutputLine
	busy   *BusySync
	clock  Clock
	timing Timing
	obs    Observer

	state State
	cfg   PanelConfig
}

// New returns a Driver in the Uninitialized state.
func New(bus *Bus, rst OutputLine, busy InputLine, opts Options) *Driver {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock
	}
	timing := opts.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Driver{
		bus:    bus,
		rst:    rst,
		busy:   NewBusySync(busy, clock, timing.BusyTimeout),
		clock:  clock,
		timing: timing,
		obs:    obs,
	}
}

// NewFromHardware builds the bus and driver for an opened backend.
func NewFromHardware(hw *Hardware, opts Options) *Driver {
	return New(NewBus(hw.Conn, hw.CS, hw.DC), hw.RST, hw.Busy, opts)
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// Config returns the configuration applied by the last Configure.
func (d *Driver) Config() PanelConfig {
	return d.cfg
}

// Busy returns the busy synchronizer state.
func (d *Driver) Busy() BusyState {
	return d.busy.State()
}

// Status is a snapshot for human-readable reporting.
type Status struct {
	State     State
	Panel     string
	Width     int
	Height    int
	Busy      BusyState
	BusyLevel gpio.Level
}

// Status samples the busy line and returns a snapshot. It generates no bus
// traffic.
func (d *Driver) Status() Status {
	return Status{
		State:     d.state,
		Panel:     d.cfg.Name,
		Width:     d.cfg.Width,
		Height:    d.cfg.Height,
		Busy:      d.busy.State(),
		BusyLevel: d.busy.Level(),
	}
}

func (d *Driver) setState(to State) {
	from := d.state
	if from == to {
		return
	}
	d.state = to
	appLog.Debug("epd state", "from", from, "to", to)
	d.obs.StateChanged(from, to)
}

// Reset pulses the reset line low then high three times. It is valid from any
// state and forgets the inferred busy polarity.
func (d *Driver) Reset() error {
	eh := errorHandler{}
	for i := 0; i < 3; i++ {
		eh.out(d.rst, gpio.Low)
		d.clock.Sleep(d.timing.ResetPulse)
		eh.out(d.rst, gpio.High)
		d.clock.Sleep(d.timing.ResetPulse)
	}
	if eh.err != nil {
		return fmt.Errorf("epd: reset: %w", eh.err)
	}
	d.busy.Forget()
	d.cfg = PanelConfig{}
	d.setState(Resetting)
	return nil
}

// Configure validates cfg and sends the power-up sequence. It must follow
// Reset. An invalid cfg is rejected before any bus traffic.
func (d *Driver) Configure(cfg PanelConfig) error {
	res, err := cfg.EncodeResolution()
	if err != nil {
		return err
	}
	if d.state != Resetting {
		return fmt.Errorf("epd: configure in state %v: %w", d.state, ErrInvalidState)
	}

	appLog.Info("epd configure",
		"panel", cfg.Name,
		"width", cfg.Width,
		"height", cfg.Height,
		"resolution", cfg.Resolution,
	)

	d.setState(Configuring)
	ctrl := d.controller()
	configurePanel(ctrl, &cfg, res)
	if ctrl.err != nil {
		return fmt.Errorf("epd: configure %s: %w", cfg.Name, ctrl.err)
	}
	d.cfg = cfg
	d.setState(PoweredOn)
	return nil
}

// Init is Reset followed by Configure.
func (d *Driver) Init(cfg PanelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := d.Reset(); err != nil {
		return err
	}
	return d.Configure(cfg)
}

// RefreshTrigger starts the physical refresh and waits for it to finish.
func (d *Driver) RefreshTrigger() error {
	if !d.state.Awake() {
		return fmt.Errorf("epd: refresh in state %v: %w", d.state, ErrInvalidState)
	}
	d.setState(Refreshing)
	start := d.clock.Now()
	ctrl := d.controller()
	triggerRefresh(ctrl, d.timing.RefreshSettle)
	d.setState(Idle)
	if ctrl.err != nil {
		return fmt.Errorf("epd: refresh: %w", ctrl.err)
	}
	appLog.Info("epd refresh done", "took", d.clock.Now().Sub(start), "busy", d.busy.State().LastWait.Outcome)
	return nil
}

// Push sends the previous-image and new-image planes in the requested order
// and triggers a refresh.
//
// For a mono buffer the previous image is synthetic, opts.OldFill repeated.
// For a buffer with an accent plane, the old-image slot carries the black
// plane and the new-image slot the inverted accent plane, which is how the
// tri-color controllers of this family read them.
func (d *Driver) Push(fb Planes, opts PushOptions) (PushReport, error) {
	if !d.state.Awake() {
		return PushReport{}, fmt.Errorf("epd: push in state %v: %w", d.state, ErrInvalidState)
	}
	size := d.cfg.PlaneSize()
	black := fb.Bytes()
	if len(black) != size {
		return PushReport{}, fmt.Errorf("epd: push %d bytes, panel %s wants %d: %w", len(black), d.cfg.Name, size, ErrBufferSize)
	}
	accent := fb.Accent()
	if accent != nil && len(accent) != size {
		return PushReport{}, fmt.Errorf("epd: push accent %d bytes, panel %s wants %d: %w", len(accent), d.cfg.Name, size, ErrBufferSize)
	}

	old := plane{cmd: dataStartOld}
	next := plane{cmd: dataStartNew}
	if accent == nil {
		old.data = bytes.Repeat([]byte{opts.OldFill}, size)
		next.data = black
	} else {
		old.data = black
		next.data = invert(accent)
	}

	first, second := old, next
	if opts.Order == NewFirst {
		first, second = next, old
	}

	appLog.Info("epd push", "order", opts.Order, "old_fill", fmt.Sprintf("%02X", opts.OldFill), "bytes", size)
	ctrl := d.controller()
	pushPlanes(ctrl, first, second)
	if ctrl.err != nil {
		return PushReport{}, fmt.Errorf("epd: push: %w", ctrl.err)
	}
	d.obs.PlaneSent(first.cmd, len(first.data))
	d.obs.PlaneSent(second.cmd, len(second.data))

	report := newPushReport(opts, old.data, next.data)
	return report, d.RefreshTrigger()
}

// DeepSleep powers the controller off and puts it into deep sleep. Only a
// Reset leaves PoweredOff.
func (d *Driver) DeepSleep() error {
	if !d.state.Awake() {
		return fmt.Errorf("epd: deep sleep in state %v: %w", d.state, ErrInvalidState)
	}
	ctrl := d.controller()
	powerOffDeep(ctrl, d.timing.DeepSleepSettle)
	d.setState(PoweredOff)
	if ctrl.err != nil {
		return fmt.Errorf("epd: deep sleep: %w", ctrl.err)
	}
	appLog.Info("epd deep sleep")
	return nil
}

// ReadStatusRegister issues the get-status command and reads one byte back.
// It is refused before the first reset, while a refresh is in progress and
// in deep sleep.
func (d *Driver) ReadStatusRegister() (byte, error) {
	if d.state == Uninitialized || d.state == Refreshing || d.state == PoweredOff {
		return 0, fmt.Errorf("epd: status read in state %v: %w", d.state, ErrInvalidState)
	}
	if err := d.bus.WriteCommand(getStatus); err != nil {
		return 0, fmt.Errorf("epd: status read: %w", err)
	}
	v, err := d.bus.ReadData()
	if err != nil {
		return 0, fmt.Errorf("epd: status read: %w", err)
	}
	return v, nil
}

func invert(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = ^b
	}
	return out
}

func (d *Driver) controller() *busController {
	return &busController{d: d}
}

// busController implements controller over the real bus with a sticky error.
type busController struct {
	d   *Driver
	err error
}

func (c *busController) sendCommand(cmd byte) {
	if c.err != nil {
		return
	}
	c.err = c.d.bus.WriteCommand(cmd)
}

func (c *busController) sendData(data ...byte) {
	if c.err != nil {
		return
	}
	c.err = c.d.bus.WriteDataBytes(data)
}

// waitReady runs even after a bus error so that the controller is not
// hammered while it may still be busy.
func (c *busController) waitReady() {
	res := c.d.busy.WaitReady(c.d.timing.BusyTimeout)
	c.d.obs.BusyWaited(res)
}

func (c *busController) delay(d time.Duration) {
	c.d.clock.Sleep(d)
}

func (c *busController) detectBusy() {
	c.d.busy.Detect()
}

func (c *busController) refineBusy() {
	c.d.busy.Refine()
}
