package calib

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
)

type fakeTarget struct {
	calls   []string
	failOn  string
	status  byte
	paused  time.Duration
	current epd.PanelConfig
}

func (f *fakeTarget) Reinit(cfg epd.PanelConfig, ctx epd.DriverContext) error {
	f.calls = append(f.calls, "reinit "+cfg.Name+" "+ctx.Orientation.String())
	if cfg.Name == f.failOn {
		return epd.ErrInvalidConfig
	}
	f.current = cfg
	return nil
}

func (f *fakeTarget) ShowWith(opts epd.PushOptions, draw func(fb *framebuf.Buffer) error) (epd.PushReport, error) {
	fb, err := framebuf.New(f.current.Width, f.current.Height, 1)
	if err != nil {
		return epd.PushReport{}, err
	}
	if err := draw(fb); err != nil {
		return epd.PushReport{}, err
	}
	f.calls = append(f.calls, "show "+opts.Order.String())
	return epd.PushReport{Order: opts.Order, OldFill: opts.OldFill}, nil
}

func (f *fakeTarget) ReadStatus() (byte, error) {
	f.calls = append(f.calls, "status")
	return f.status, nil
}

func (f *fakeTarget) Pause(d time.Duration) {
	f.paused += d
}

func base(t *testing.T) epd.PanelConfig {
	t.Helper()
	cfg, err := epd.LookupVariant(epd.DefaultVariant)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestOrientationAttempts(t *testing.T) {
	got := OrientationAttempts(base(t), epd.DriverContext{})
	type row struct {
		Name      string
		W, H      int
		Enc       epd.ResolutionEncoding
		Transpose bool
		Invert    bool
	}
	var rows []row
	for _, a := range got {
		rows = append(rows, row{a.Name, a.Config.Width, a.Config.Height, a.Config.Resolution,
			a.Context.Orientation.Transpose, a.Context.Orientation.Invert})
		if err := a.Config.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v", a.Name, err)
		}
	}
	want := []row{
		{"W112xH208", 112, 208, epd.ThreeByte, false, false},
		{"W208xH112", 208, 112, epd.ThreeByte, false, false},
		{"TRP_112x208", 112, 208, epd.ThreeByte, true, false},
		{"TRP_208x112", 208, 112, epd.ThreeByte, true, false},
		{"INV_112x208", 112, 208, epd.ThreeByte, false, true},
	}
	if diff := cmp.Diff(rows, want); diff != "" {
		t.Errorf("OrientationAttempts() difference (-got +want):\n%s", diff)
	}
}

func TestParamAttempts(t *testing.T) {
	got := ParamAttempts(base(t), epd.DriverContext{})
	if len(got) != 10 {
		t.Fatalf("len(ParamAttempts()) = %d, want 10", len(got))
	}
	for _, a := range got {
		if a.Config.Resolution != epd.FourByte {
			t.Errorf("%s: resolution %v, want 4-byte", a.Name, a.Config.Resolution)
		}
		if a.Context.Push.OldFill != 0xFF {
			t.Errorf("%s: old fill %02X, want FF", a.Name, a.Context.Push.OldFill)
		}
		if err := a.Config.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v", a.Name, err)
		}
	}
	last := got[len(got)-1]
	if last.Name != "vF7-112x208" || last.Config.VCOM != 0xF7 || last.Config.Panel != [2]byte{0x1F, 0x0D} {
		t.Errorf("last attempt = %s vcom=%02X panel=%X", last.Name, last.Config.VCOM, last.Config.Panel)
	}
	if got[0].Config.Panel != [2]byte{0xBF, 0x0D} {
		t.Errorf("first attempt panel = %X, want BF0D", got[0].Config.Panel)
	}
}

func TestVariantAttemptsCoverAllVariants(t *testing.T) {
	got := VariantAttempts(epd.PanelConfig{}, epd.DriverContext{})
	var names []string
	for _, a := range got {
		names = append(names, a.Name)
	}
	var want []string
	for _, v := range epd.Variants {
		want = append(want, v.Name)
	}
	if diff := cmp.Diff(names, want); diff != "" {
		t.Errorf("VariantAttempts() names difference (-got +want):\n%s", diff)
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	f := &fakeTarget{failOn: "B208x112_3B", status: 0x02}
	attempts := ResolutionAttempts(base(t), epd.DriverContext{})

	results := Run(f, SweepResolution, attempts)
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	if !errors.Is(results[1].Err, epd.ErrInvalidConfig) {
		t.Errorf("results[1].Err = %v, want ErrInvalidConfig", results[1].Err)
	}
	for _, i := range []int{0, 2, 3} {
		if results[i].Err != nil || results[i].Status != 0x02 {
			t.Errorf("results[%d] = %+v, want status 02", i, results[i])
		}
	}
	// Three successful attempts, each with a pattern and a white push.
	shows := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, "show") {
			shows++
		}
	}
	if shows != 6 {
		t.Errorf("shows = %d, want 6", shows)
	}
	if f.paused != 3*400*time.Millisecond {
		t.Errorf("paused = %v, want 1.2s", f.paused)
	}

	sum := Summary(results)
	if !strings.Contains(sum, "A112x208_3B: status=0x02") || !strings.Contains(sum, "B208x112_3B: error:") {
		t.Errorf("Summary() = %q", sum)
	}
}

func TestAttemptsUnknownSweep(t *testing.T) {
	if _, err := Attempts("nope", base(t), epd.DriverContext{}); err == nil {
		t.Error("Attempts(nope) succeeded")
	}
	want := []string{SweepOrientation, SweepParams, SweepResolution, SweepVariants}
	if diff := cmp.Diff(Names(), want); diff != "" {
		t.Errorf("Names() difference (-got +want):\n%s", diff)
	}
}
