package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"epdpanel/internal/calib"
	"epdpanel/internal/convert"
	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
	"epdpanel/internal/glyph"
	appLog "epdpanel/internal/log"
	"epdpanel/internal/pattern"
)

var (
	ErrUnknownCommand = errors.New("dispatch: unknown command")
	ErrUsage          = errors.New("dispatch: bad arguments")
)

type command struct {
	usage string
	help  string
	run   func(d *Dispatcher, w io.Writer, args []string) error
}

// Dispatcher parses console commands. Single character commands are the
// bring-up keys; longer ones are words with arguments.
type Dispatcher struct {
	s    *Session
	cmds map[string]command
}

// NewDispatcher returns a dispatcher over s.
func NewDispatcher(s *Session) *Dispatcher {
	d := &Dispatcher{s: s}
	d.cmds = map[string]command{
		"0": {help: "digits", run: showPattern(pattern.Digits, "digits shown")},
		"1": {help: "letters", run: showPattern(pattern.Letters, "letters shown")},
		"2": {help: "stripes, then white", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			return report(w, d.s.Stripes(), "stripes shown")
		}},
		"3": {help: "orientation sweep", run: sweep(calib.SweepOrientation)},
		"4": {help: "black/white clean cycle", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			return report(w, d.s.Clean(), "clean cycle done")
		}},
		"5": {help: "white", run: showPattern(white, "white")},
		"6": {help: "resolution sweep", run: sweep(calib.SweepResolution)},
		"7": {help: "border", run: showPattern(pattern.Border, "border shown")},
		"9": {help: "toggle old plane fill 00/FF", run: (*Dispatcher).toggleOldFill},
		"b": {help: "black", run: showPattern(black, "black")},
		"d": {help: "toggle data debug", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			fmt.Fprintf(w, "data debug -> %s\n", onOff(d.s.ToggleDataDebug()))
			return nil
		}},
		"h": {help: "help", run: (*Dispatcher).help},
		"i": {help: "toggle invert, then digits", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			ctx := d.s.UpdateContext(func(c *epd.DriverContext) { c.Orientation.Invert = !c.Orientation.Invert })
			fmt.Fprintf(w, "invert -> %s\n", onOff(ctx.Orientation.Invert))
			return showPattern(pattern.Digits, "digits shown")(d, w, nil)
		}},
		"o": {help: "toggle plane order", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			ctx := d.s.UpdateContext(func(c *epd.DriverContext) {
				if c.Push.Order == epd.OldFirst {
					c.Push.Order = epd.NewFirst
				} else {
					c.Push.Order = epd.OldFirst
				}
			})
			fmt.Fprintf(w, "plane order -> %s\n", ctx.Push.Order)
			return nil
		}},
		"r": {help: "deep sleep and reinit", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			return report(w, d.s.Restart(), "reinit "+d.s.Base().Name)
		}},
		"s": {help: "toggle auto status", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			fmt.Fprintf(w, "auto status -> %s\n", onOff(d.s.ToggleAutoStatus()))
			return nil
		}},
		"t": {help: "status line", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			fmt.Fprintln(w, d.s.StatusLine())
			return nil
		}},
		"u": {help: "ultra clear", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			return report(w, d.s.UltraClear(), "ultra clear done")
		}},
		"x": {help: "toggle transpose, then digits", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			ctx := d.s.UpdateContext(func(c *epd.DriverContext) { c.Orientation.Transpose = !c.Orientation.Transpose })
			fmt.Fprintf(w, "transpose -> %s\n", onOff(ctx.Orientation.Transpose))
			return showPattern(pattern.Digits, "digits shown")(d, w, nil)
		}},
		"y": {help: "polarity bands", run: func(d *Dispatcher, w io.Writer, _ []string) error {
			return report(w, d.s.PolarityBands(), "polarity bands done")
		}},

		"init":     {usage: "[variant]", help: "reset and configure", run: (*Dispatcher).initPanel},
		"sleep":    {help: "deep sleep", run: func(d *Dispatcher, w io.Writer, _ []string) error { return report(w, d.s.Sleep(), "sleeping") }},
		"refresh":  {help: "refresh without new data", run: func(d *Dispatcher, w io.Writer, _ []string) error { return report(w, d.s.Refresh(), "refreshed") }},
		"clear":    {help: "clear the buffer, no push", run: (*Dispatcher).clear},
		"pixel":    {usage: "x y [0|1]", help: "set one pixel, no push", run: (*Dispatcher).pixel},
		"text":     {usage: "x y msg", help: "draw text, no push", run: (*Dispatcher).text},
		"label":    {usage: "msg", help: "large framed label", run: (*Dispatcher).label},
		"image":    {usage: "path", help: "convert and show an image file", run: (*Dispatcher).image},
		"push":     {help: "push the buffer", run: (*Dispatcher).push},
		"preview":  {usage: "[step]", help: "draw the buffer on this terminal", run: (*Dispatcher).preview},
		"variants": {help: "list panel variants", run: (*Dispatcher).variants},
		"sweep":    {usage: "name", help: "calibration sweep: " + strings.Join(calib.Names(), ", "), run: (*Dispatcher).sweep},
	}
	d.cmds["w"] = d.cmds["5"]
	d.cmds["status"] = d.cmds["t"]
	d.cmds["help"] = d.cmds["h"]
	return d
}

func white(fb *framebuf.Buffer) { pattern.Solid(fb, false) }
func black(fb *framebuf.Buffer) { pattern.Solid(fb, true) }

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func report(w io.Writer, err error, done string) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(w, done)
	return nil
}

func showPattern(p func(fb *framebuf.Buffer), done string) func(d *Dispatcher, w io.Writer, args []string) error {
	return func(d *Dispatcher, w io.Writer, _ []string) error {
		_, err := d.s.Show(func(fb *framebuf.Buffer) error {
			p(fb)
			return nil
		})
		return report(w, err, done)
	}
}

func sweep(name string) func(d *Dispatcher, w io.Writer, args []string) error {
	return func(d *Dispatcher, w io.Writer, _ []string) error {
		return d.sweep(w, []string{name})
	}
}

// Exec runs one command line, writing its output to w.
func (d *Dispatcher) Exec(w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	cmd, ok := d.cmds[name]
	if !ok {
		return fmt.Errorf("%w: %q (h for help)", ErrUnknownCommand, fields[0])
	}
	appLog.Debug("command", "name", name, "args", fields[1:])
	return cmd.run(d, w, fields[1:])
}

// Run reads commands from r until it is exhausted or ctx is done. Command
// errors are written to w and do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := d.Exec(w, line); err != nil {
				appLog.Error("command failed", err, "line", line)
				fmt.Fprintf(w, "error: %v\n", err)
			}
		}
	}
}

func (d *Dispatcher) help(w io.Writer, _ []string) error {
	names := make([]string, 0, len(d.cmds))
	for n := range d.cmds {
		names = append(names, n)
	}
	// Keys first, then words.
	sort.Slice(names, func(i, j int) bool {
		ki, kj := len(names[i]) == 1, len(names[j]) == 1
		if ki != kj {
			return ki
		}
		return names[i] < names[j]
	})
	for _, n := range names {
		c := d.cmds[n]
		fmt.Fprintf(w, "  %-18s %s\n", strings.TrimSpace(n+" "+c.usage), c.help)
	}
	return nil
}

func (d *Dispatcher) toggleOldFill(w io.Writer, _ []string) error {
	ctx := d.s.UpdateContext(func(c *epd.DriverContext) {
		if c.Push.OldFill == 0x00 {
			c.Push.OldFill = 0xFF
		} else {
			c.Push.OldFill = 0x00
		}
	})
	fmt.Fprintf(w, "old plane fill -> %02X\n", ctx.Push.OldFill)
	return nil
}

func (d *Dispatcher) initPanel(w io.Writer, args []string) error {
	cfg := d.s.Base()
	if len(args) > 0 {
		v, err := epd.LookupVariant(args[0])
		if err != nil {
			return err
		}
		cfg = v
	}
	return report(w, d.s.Init(cfg), "init "+cfg.Name)
}

func (d *Dispatcher) clear(w io.Writer, _ []string) error {
	return d.s.Draw(func(fb *framebuf.Buffer) error {
		fb.Clear(0xFF)
		return nil
	})
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

func (d *Dispatcher) pixel(w io.Writer, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: pixel x y [0|1]", ErrUsage)
	}
	v, err := parseInts(args)
	if err != nil {
		return err
	}
	on := len(v) < 3 || v[2] != 0
	return d.s.Draw(func(fb *framebuf.Buffer) error {
		fb.SetPixel(v[0], v[1], on)
		return nil
	})
}

func (d *Dispatcher) text(w io.Writer, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: text x y msg", ErrUsage)
	}
	v, err := parseInts(args[:2])
	if err != nil {
		return err
	}
	msg := strings.Join(args[2:], " ")
	return d.s.Draw(func(fb *framebuf.Buffer) error {
		glyph.Draw(fb, v[0], v[1], msg)
		return nil
	})
}

func (d *Dispatcher) label(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: label msg", ErrUsage)
	}
	msg := strings.Join(args, " ")
	_, err := d.s.Show(func(fb *framebuf.Buffer) error {
		return pattern.Label(fb, msg)
	})
	return report(w, err, "label shown")
}

func (d *Dispatcher) image(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: image path", ErrUsage)
	}
	img, err := convert.Load(args[0])
	if err != nil {
		return err
	}
	_, err = d.s.Show(func(fb *framebuf.Buffer) error {
		convert.Pack(fb, img)
		return nil
	})
	return report(w, err, "image shown")
}

func (d *Dispatcher) push(w io.Writer, _ []string) error {
	rep, err := d.s.Push()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pushed %s new=%08X\n", rep.Order, rep.NewHash)
	return nil
}

func (d *Dispatcher) preview(w io.Writer, args []string) error {
	step := 2
	if len(args) > 0 {
		v, err := parseInts(args[:1])
		if err != nil {
			return err
		}
		step = v[0]
	}
	return d.s.WriteANSI(w, step)
}

func (d *Dispatcher) variants(w io.Writer, _ []string) error {
	for _, v := range epd.Variants {
		fmt.Fprintf(w, "  %-14s %dx%d %s vcom=%02X panel=%02X%02X\n",
			v.Name, v.Width, v.Height, v.Resolution, v.VCOM, v.Panel[0], v.Panel[1])
	}
	return nil
}

// sweep runs a calibration sweep and restores the configured panel and the
// context it started with.
func (d *Dispatcher) sweep(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: sweep %s", ErrUsage, strings.Join(calib.Names(), "|"))
	}
	base, ctx := d.s.Base(), d.s.Context()
	attempts, err := calib.Attempts(strings.ToLower(args[0]), base, ctx)
	if err != nil {
		return err
	}
	results := calib.Run(d.s, args[0], attempts)
	fmt.Fprint(w, calib.Summary(results))
	return report(w, d.s.Reinit(base, ctx), "sweep done, back on "+base.Name)
}
