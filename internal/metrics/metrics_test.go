package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"epdpanel/internal/epd"
)

func TestObserver(t *testing.T) {
	o := New()

	o.StateChanged(epd.PoweredOn, epd.Refreshing)
	o.StateChanged(epd.Refreshing, epd.Idle)
	o.BusyWaited(epd.WaitResult{Outcome: epd.WaitCompleted, Elapsed: 30 * time.Millisecond})
	o.BusyWaited(epd.WaitResult{Outcome: epd.WaitTimedOut, Elapsed: 5 * time.Second})
	o.BusyWaited(epd.WaitResult{Outcome: epd.WaitSkipped})
	o.PlaneSent(0x10, 2912)
	o.PlaneSent(0x13, 2912)
	o.PlaneSent(0x13, 2912)

	if got := testutil.ToFloat64(o.refreshes); got != 1 {
		t.Errorf("refreshes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.state); got != float64(epd.Idle) {
		t.Errorf("state = %v, want %v", got, float64(epd.Idle))
	}
	if got := testutil.ToFloat64(o.waits.WithLabelValues("timed-out")); got != 1 {
		t.Errorf("timed-out waits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.planeBytes.WithLabelValues("new")); got != 5824 {
		t.Errorf("new plane bytes = %v, want 5824", got)
	}
	if got := testutil.CollectAndCount(o.waitSeconds); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	o := New()
	o.PlaneSent(0x10, 8)

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `epd_plane_bytes_total{plane="old"} 8`) {
		t.Errorf("metrics output missing plane counter:\n%s", body)
	}
}
