package calib

import (
	"fmt"
	"sort"
	"time"

	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
	"epdpanel/internal/pattern"
)

// Sweep names.
const (
	SweepOrientation = "orientation"
	SweepResolution  = "resolution"
	SweepParams      = "params"
	SweepVariants    = "variants"
)

// Builders maps sweep names to attempt builders. base is the register set
// the geometry sweeps run with.
var Builders = map[string]func(base epd.PanelConfig, ctx epd.DriverContext) []Attempt{
	SweepOrientation: OrientationAttempts,
	SweepResolution:  ResolutionAttempts,
	SweepParams:      ParamAttempts,
	SweepVariants:    VariantAttempts,
}

// Names lists the sweeps, sorted.
func Names() []string {
	names := make([]string, 0, len(Builders))
	for n := range Builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Attempts returns the attempts of a named sweep.
func Attempts(name string, base epd.PanelConfig, ctx epd.DriverContext) ([]Attempt, error) {
	b, ok := Builders[name]
	if !ok {
		return nil, fmt.Errorf("calib: unknown sweep %q", name)
	}
	return b(base, ctx), nil
}

func bars(fb *framebuf.Buffer) error {
	pattern.Bars(fb)
	return nil
}

// OrientationAttempts tries both axis orders, with and without transpose,
// plus an inverted reference, all with the 3-byte resolution payload.
func OrientationAttempts(base epd.PanelConfig, ctx epd.DriverContext) []Attempt {
	list := []struct {
		name      string
		w, h      int
		transpose bool
		invert    bool
	}{
		{"W112xH208", 112, 208, false, false},
		{"W208xH112", 208, 112, false, false},
		{"TRP_112x208", 112, 208, true, false},
		{"TRP_208x112", 208, 112, true, false},
		{"INV_112x208", 112, 208, false, true},
	}
	out := make([]Attempt, 0, len(list))
	for _, o := range list {
		c := ctx
		c.Orientation = framebuf.Orientation{Transpose: o.transpose, Invert: o.invert}
		out = append(out, Attempt{
			Name:    o.name,
			Config:  base.WithGeometry(o.w, o.h, epd.ThreeByte),
			Context: c,
			Draw:    bars,
			Hold:    500 * time.Millisecond,
			Clear:   true,
		})
	}
	return out
}

// ResolutionAttempts tries the resolution payload encodings with swapped
// geometries, each tagged with a letter.
func ResolutionAttempts(base epd.PanelConfig, ctx epd.DriverContext) []Attempt {
	list := []struct {
		tag  string
		w, h int
		enc  epd.ResolutionEncoding
	}{
		{"A112x208_3B", 112, 208, epd.ThreeByte},
		{"B208x112_3B", 208, 112, epd.ThreeByte},
		{"C296x160_4B", 296, 160, epd.FourByte},
		{"D160x296_4B", 160, 296, epd.FourByte},
	}
	out := make([]Attempt, 0, len(list))
	for _, r := range list {
		letter := r.tag[:1]
		out = append(out, Attempt{
			Name:    r.tag,
			Config:  base.WithGeometry(r.w, r.h, r.enc),
			Context: ctx,
			Draw: func(fb *framebuf.Buffer) error {
				pattern.ResolutionBands(fb, letter)
				return nil
			},
			Hold:  400 * time.Millisecond,
			Clear: true,
		})
	}
	return out
}

// ParamAttempts mutates VCOM and panel setting over two geometries. The old
// plane is sent as 0xFF.
func ParamAttempts(base epd.PanelConfig, ctx epd.DriverContext) []Attempt {
	muts := []struct {
		tag   string
		vcom  byte
		panel [2]byte
	}{
		{"v11", 0x11, [2]byte{0xBF, 0x0D}},
		{"v17", 0x17, [2]byte{0xBF, 0x0D}},
		{"v57", 0x57, [2]byte{0x1F, 0x0D}},
		{"v77", 0x77, [2]byte{0x1F, 0x0D}},
		{"vF7", 0xF7, [2]byte{0x1F, 0x0D}},
	}
	sizes := [][2]int{{296, 160}, {112, 208}}
	c := ctx
	c.Push = epd.PushOptions{Order: epd.OldFirst, OldFill: 0xFF}

	var out []Attempt
	for _, m := range muts {
		for _, sz := range sizes {
			cfg := base.WithGeometry(sz[0], sz[1], epd.FourByte)
			cfg.Name = fmt.Sprintf("%s-%dx%d", m.tag, sz[0], sz[1])
			cfg.VCOM = m.vcom
			cfg.Panel = m.panel
			out = append(out, Attempt{
				Name:    cfg.Name,
				Config:  cfg,
				Context: c,
				Hold:    800 * time.Millisecond,
			})
		}
	}
	return out
}

// VariantAttempts runs every known variant, each showing its own name.
func VariantAttempts(_ epd.PanelConfig, ctx epd.DriverContext) []Attempt {
	out := make([]Attempt, 0, len(epd.Variants))
	for _, v := range epd.Variants {
		name := v.Name
		out = append(out, Attempt{
			Name:    name,
			Config:  v,
			Context: ctx,
			Draw: func(fb *framebuf.Buffer) error {
				return pattern.Label(fb, name)
			},
			Hold: 1500 * time.Millisecond,
		})
	}
	return out
}
