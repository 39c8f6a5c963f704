package framebuf

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		name          string
		w, h, planes  int
		wantErr       bool
		wantPlaneSize int
	}{
		{name: "reference", w: 112, h: 208, planes: 1, wantPlaneSize: 2912},
		{name: "tri-color", w: 296, h: 160, planes: 2, wantPlaneSize: 5920},
		{name: "unaligned", w: 100, h: 10, planes: 1, wantErr: true},
		{name: "empty", w: 0, h: 10, planes: 1, wantErr: true},
		{name: "three planes", w: 8, h: 8, planes: 3, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := New(tc.w, tc.h, tc.planes)
			if tc.wantErr {
				if !errors.Is(err, ErrGeometry) {
					t.Errorf("New() error = %v, want %v", err, ErrGeometry)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if b.PlaneSize() != tc.wantPlaneSize {
				t.Errorf("PlaneSize() = %d, want %d", b.PlaneSize(), tc.wantPlaneSize)
			}
			for i, v := range b.Bytes() {
				if v != 0xFF {
					t.Fatalf("Bytes()[%d] = %#02x, want cleared to 0xff", i, v)
				}
			}
			if (b.Accent() != nil) != (tc.planes == 2) {
				t.Errorf("Accent() presence = %t, want %t", b.Accent() != nil, tc.planes == 2)
			}
		})
	}
}

func TestSetPixelAddressing(t *testing.T) {
	for _, tc := range []struct {
		name      string
		o         Orientation
		x, y      int
		fg        bool
		wantIndex int
		wantByte  byte
	}{
		{name: "origin", x: 0, y: 0, fg: true, wantIndex: 0, wantByte: 0x7F},
		{name: "bit order", x: 7, y: 0, fg: true, wantIndex: 0, wantByte: 0xFE},
		{name: "second row", x: 9, y: 1, fg: true, wantIndex: 3, wantByte: 0xBF},
		{name: "transpose", o: Orientation{Transpose: true}, x: 1, y: 9, fg: true, wantIndex: 3, wantByte: 0xBF},
		{name: "invert draws on background", o: Orientation{Invert: true}, x: 0, y: 0, fg: false, wantIndex: 0, wantByte: 0x7F},
		{name: "invert erases foreground", o: Orientation{Invert: true}, x: 0, y: 0, fg: true, wantIndex: 0, wantByte: 0xFF},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := New(16, 4, 1)
			b.SetOrientation(tc.o)

			b.SetPixel(tc.x, tc.y, tc.fg)

			want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
			want[tc.wantIndex] = tc.wantByte
			if diff := cmp.Diff(b.Bytes(), want); diff != "" {
				t.Errorf("Bytes() difference (-got +want):\n%s", diff)
			}
		})
	}
}

// Every orientation must touch exactly the predicted bit for every in-range
// pixel and nothing for out-of-range ones.
func TestSetPixelAllOrientations(t *testing.T) {
	const w, h = 16, 8
	for _, o := range []Orientation{{}, {Transpose: true}, {Invert: true}, {Transpose: true, Invert: true}} {
		for _, fg := range []bool{false, true} {
			for y := -2; y < w+2; y++ {
				for x := -2; x < w+2; x++ {
					b, _ := New(w, h, 1)
					b.Clear(0xAA)
					b.SetOrientation(o)
					before := append([]byte(nil), b.Bytes()...)

					b.SetPixel(x, y, fg)

					tx, ty := x, y
					if o.Transpose {
						tx, ty = y, x
					}
					want := before
					if tx >= 0 && ty >= 0 && tx < w && ty < h {
						want = append([]byte(nil), before...)
						i, mask := (tx+ty*w)/8, byte(0x80>>uint(tx%8))
						if fg != o.Invert {
							want[i] &^= mask
						} else {
							want[i] |= mask
						}
					}
					if diff := cmp.Diff(b.Bytes(), want); diff != "" {
						t.Fatalf("%v SetPixel(%d, %d, %t) difference (-got +want):\n%s", o, x, y, fg, diff)
					}
				}
			}
		}
	}
}

func TestAccent(t *testing.T) {
	mono, _ := New(8, 1, 1)
	mono.SetAccent(0, 0, true)
	if mono.Accent() != nil {
		t.Error("SetAccent allocated a plane on a mono buffer")
	}

	b, _ := New(8, 1, 2)
	b.SetAccent(1, 0, true)
	b.SetPixel(2, 0, true)
	if got := b.Accent()[0]; got != 0xBF {
		t.Errorf("Accent()[0] = %#02x, want 0xbf", got)
	}
	for x, want := range []Ink{Paper, AccentInk, Black, Paper} {
		if got := b.InkAt(x, 0); got != want {
			t.Errorf("InkAt(%d, 0) = %v, want %v", x, got, want)
		}
	}
	b.Clear(0x00)
	if got := b.Accent()[0]; got != 0xFF {
		t.Errorf("Clear() left accent %#02x", got)
	}
}

func TestDrawImage(t *testing.T) {
	b, _ := New(16, 8, 2)
	b.SetOrientation(Orientation{Transpose: true})
	if got, want := b.Bounds(), image.Rect(0, 0, 8, 16); got != want {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}

	draw.Draw(b, image.Rect(0, 0, 1, 1), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(b, image.Rect(0, 1, 1, 2), image.NewUniform(color.RGBA{0xFF, 0, 0, 0xFF}), image.Point{}, draw.Src)

	if b.Bit(0, 0) {
		t.Error("black pixel not drawn")
	}
	// Logical (0, 1) is physical (1, 0) when transposed.
	if b.AccentBit(1, 0) {
		t.Error("red pixel not drawn to the accent plane")
	}
	if got := b.At(0, 1); got != AccentColor {
		t.Errorf("At(0, 1) = %v, want %v", got, AccentColor)
	}
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		c      color.Color
		accent bool
		want   Ink
	}{
		{color.White, false, Paper},
		{color.Black, false, Black},
		{color.Gray{0x40}, false, Black},
		{color.Gray{0xC0}, false, Paper},
		{color.RGBA{0xFF, 0, 0, 0xFF}, true, AccentInk},
		{color.RGBA{0xFF, 0, 0, 0xFF}, false, Black},
		{color.Transparent, true, Paper},
	} {
		if got := Classify(tc.c, tc.accent); got != tc.want {
			t.Errorf("Classify(%v, %t) = %v, want %v", tc.c, tc.accent, got, tc.want)
		}
	}
}

func TestClone(t *testing.T) {
	b, _ := New(8, 2, 1)
	c := b.Clone()
	c.SetPixel(0, 0, true)
	if !b.Bit(0, 0) {
		t.Error("Clone() shares storage")
	}
}
