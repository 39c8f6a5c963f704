package convert

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epdpanel/internal/framebuf"
)

func TestClassifyPixel(t *testing.T) {
	for _, tc := range []struct {
		c    color.NRGBA
		want inkColor
	}{
		{color.NRGBA{0, 0, 0, 255}, inkBlack},
		{color.NRGBA{40, 40, 40, 255}, inkBlack},
		{color.NRGBA{255, 255, 255, 255}, inkWhite},
		{color.NRGBA{220, 20, 20, 255}, inkRed},
		{color.NRGBA{200, 180, 180, 255}, inkWhite},
	} {
		if got := classifyPixel(tc.c); got != tc.want {
			t.Errorf("classifyPixel(%v) = %v, want %v", tc.c, got, tc.want)
		}
	}
}

func TestPackCentreCrop(t *testing.T) {
	fb, _ := framebuf.New(8, 4, 2)
	// 8x8 source: rows 2..5 survive the crop. Row 2 black, row 3 red.
	img := image.NewNRGBA(image.Rect(10, 10, 18, 18))
	for x := 10; x < 18; x++ {
		for y := 10; y < 18; y++ {
			img.Set(x, y, color.White)
		}
		img.Set(x, 12, color.Black)
		img.Set(x, 13, color.NRGBA{230, 10, 10, 255})
	}

	Pack(fb, img)

	if got := fb.Bytes(); !bytes.Equal(got, []byte{0x00, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("black plane = % X", got)
	}
	if got := fb.Accent(); !bytes.Equal(got, []byte{0xFF, 0x00, 0xFF, 0xFF}) {
		t.Errorf("accent plane = % X", got)
	}
}

func TestPackCentresSmallImage(t *testing.T) {
	fb, _ := framebuf.New(16, 4, 1)
	img := image.NewGray(image.Rect(0, 0, 8, 2))

	Pack(fb, img)

	// Black 8x2 block at x 4..11, y 1..2.
	want := []byte{0xFF, 0xFF, 0xF0, 0x0F, 0xF0, 0x0F, 0xFF, 0xFF}
	if got := fb.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = % X, want % X", got, want)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	img, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("Load() width = %d", img.Bounds().Dx())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestPreview(t *testing.T) {
	fb, _ := framebuf.New(8, 2, 2)
	fb.SetPixel(0, 0, true)
	fb.SetAccent(1, 0, true)

	img := Preview(fb, 2)

	if img.Bounds() != image.Rect(0, 0, 16, 4) {
		t.Fatalf("Bounds() = %v", img.Bounds())
	}
	if img.NRGBAAt(1, 1) != framebuf.BlackColor {
		t.Errorf("scaled black pixel = %v", img.NRGBAAt(1, 1))
	}
	if img.NRGBAAt(2, 0) != framebuf.AccentColor {
		t.Errorf("accent pixel = %v", img.NRGBAAt(2, 0))
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, fb, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("WritePNG() output does not decode: %v", err)
	}
}

func TestWriteANSI(t *testing.T) {
	fb, _ := framebuf.New(16, 4, 1)
	var buf bytes.Buffer

	if err := WriteANSI(&buf, fb, 2); err != nil {
		t.Fatal(err)
	}

	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("WriteANSI() wrote %d lines, want 2", lines)
	}
}
