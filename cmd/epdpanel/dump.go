package main

import (
	"os"
	"path/filepath"

	"epdpanel/internal/convert"
	"epdpanel/internal/epd"
	"epdpanel/internal/framebuf"
	appLog "epdpanel/internal/log"
)

// dumper returns a push hook that writes the raw planes and a PNG preview
// into dir, replacing the previous push's files.
func dumper(dir string) func(fb *framebuf.Buffer, rep epd.PushReport) {
	return func(fb *framebuf.Buffer, rep epd.PushReport) {
		if err := writeDump(dir, fb); err != nil {
			appLog.Error("failed to dump push", err, "dir", dir)
			return
		}
		appLog.Debug("push dumped", "dir", dir, "new_hash", rep.NewHash)
	}
}

func writeDump(dir string, fb *framebuf.Buffer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "black.bin"), fb.Bytes(), 0o644); err != nil {
		return err
	}
	if fb.HasAccent() {
		if err := os.WriteFile(filepath.Join(dir, "accent.bin"), fb.Accent(), 0o644); err != nil {
			return err
		}
	}
	f, err := os.Create(filepath.Join(dir, "preview.png"))
	if err != nil {
		return err
	}
	if err := convert.WritePNG(f, fb, 2); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
