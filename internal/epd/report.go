package epd

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

const reportSampleLen = 32

// PushReport summarises the planes of one push for bring-up debugging.
type PushReport struct {
	Order   Order
	OldFill byte
	OldHash uint32
	NewHash uint32
	// NewHistogram counts byte values in the new plane.
	NewHistogram map[byte]int
	// Sample is the head of the new plane.
	Sample []byte
}

func newPushReport(opts PushOptions, old, next []byte) PushReport {
	hist := make(map[byte]int)
	for _, b := range next {
		hist[b]++
	}
	n := len(next)
	if n > reportSampleLen {
		n = reportSampleLen
	}
	return PushReport{
		Order:        opts.Order,
		OldFill:      opts.OldFill,
		OldHash:      fnv1a(old),
		NewHash:      fnv1a(next),
		NewHistogram: hist,
		Sample:       append([]byte(nil), next[:n]...),
	}
}

func fnv1a(p []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(p)
	return h.Sum32()
}

// Histogram renders the most frequent values as "value=count" pairs, at most
// limit of them.
func (r PushReport) Histogram(limit int) string {
	type kv struct {
		v byte
		n int
	}
	pairs := make([]kv, 0, len(r.NewHistogram))
	for v, n := range r.NewHistogram {
		pairs = append(pairs, kv{v, n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].n != pairs[j].n {
			return pairs[i].n > pairs[j].n
		}
		return pairs[i].v < pairs[j].v
	})
	var b strings.Builder
	for i, p := range pairs {
		if i == limit {
			b.WriteString(" ...")
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X=%d", p.v, p.n)
	}
	return b.String()
}

// SampleHex renders Sample as space separated hex.
func (r PushReport) SampleHex() string {
	parts := make([]string, len(r.Sample))
	for i, b := range r.Sample {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
