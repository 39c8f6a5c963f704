package epd

import "testing"

func TestPushReport(t *testing.T) {
	next := make([]byte, 40)
	for i := range next {
		next[i] = 0xFF
	}
	next[0], next[1], next[2] = 0x00, 0x00, 0x7F

	r := newPushReport(PushOptions{Order: NewFirst, OldFill: 0x00}, make([]byte, 40), next)

	if got, want := r.Histogram(2), "FF=37 00=2 ..."; got != want {
		t.Errorf("Histogram(2) = %q, want %q", got, want)
	}
	if len(r.Sample) != 32 {
		t.Errorf("len(Sample) = %d, want 32", len(r.Sample))
	}
	if got := r.SampleHex()[:8]; got != "00 00 7F" {
		t.Errorf("SampleHex() starts %q", got)
	}
	if r.OldHash == r.NewHash {
		t.Error("old and new plane hashes collide")
	}
	// FNV-1a offset basis for the empty input.
	if got := fnv1a(nil); got != 0x811c9dc5 {
		t.Errorf("fnv1a(nil) = %#x", got)
	}
}
