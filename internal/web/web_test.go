package web

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"epdpanel/internal/config"
	"epdpanel/internal/dispatch"
	"epdpanel/internal/epd"
	"epdpanel/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *epd.SimPanel) {
	t.Helper()
	sim := epd.NewSimPanel()
	sim.StatusByte = 0x0A
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := metrics.New()
	drv := epd.NewFromHardware(sim.Hardware(), epd.Options{Clock: clock, Observer: m})
	panel, err := epd.LookupVariant(epd.DefaultVariant)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := dispatch.NewSession(drv, panel, false, epd.DriverContext{}, dispatch.Options{Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return NewServer(cfg, sess, dispatch.NewDispatcher(sess), m.Handler()), sim
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	s, sim := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d", rec.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != epd.Uninitialized.String() || got.Panel != epd.DefaultVariant || got.Order != "old-first" {
		t.Errorf("status = %+v", got.Snapshot)
	}
	if len(sim.Commands()) != 0 {
		t.Errorf("plain status sent %X", sim.Commands())
	}

	rec = do(t, h, http.MethodGet, "/api/status?register=1", "", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("register read before init = %d, want 409", rec.Code)
	}
	if len(sim.Commands()) != 0 {
		t.Errorf("register read before init sent %X", sim.Commands())
	}

	if rec = do(t, h, http.MethodPost, "/api/command", "text/plain", "init"); rec.Code != http.StatusOK {
		t.Fatalf("POST init = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/status?register=1", "", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Register != "0x0A" {
		t.Errorf("register = %q, want 0x0A", got.Register)
	}

	rec = do(t, h, http.MethodPost, "/api/status", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/status = %d, want 405", rec.Code)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantCode    int
		wantOutput  string
	}{
		{"json", "application/json", `{"command":"5"}`, http.StatusOK, "white"},
		{"text", "text/plain", "o\n", http.StatusOK, "plane order -> new-first"},
		{"unknown", "text/plain", "nope", http.StatusBadRequest, ""},
		{"usage", "text/plain", "pixel 1", http.StatusBadRequest, ""},
		{"empty", "text/plain", "  ", http.StatusBadRequest, ""},
		{"bad json", "application/json", `{"command":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil)
			rec := do(t, s.Handler(), http.MethodPost, "/api/command", tt.contentType, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("POST /api/command = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantOutput == "" {
				return
			}
			var resp commandResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(resp.Output, tt.wantOutput) {
				t.Errorf("output = %q, want %q", resp.Output, tt.wantOutput)
			}
		})
	}
}

func TestCommandInvalidatesStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodGet, "/api/status", "", "")
	do(t, h, http.MethodPost, "/api/command", "text/plain", "b")

	rec := do(t, h, http.MethodGet, "/api/status", "", "")
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != epd.Idle.String() || got.Pushes != 1 {
		t.Errorf("status after push = state %q pushes %d, want idle 1", got.State, got.Pushes)
	}
}

func TestPreview(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/preview.png?scale=3", "", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("GET /preview.png = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 112*3 || b.Dy() != 208*3 {
		t.Errorf("preview bounds = %v, want 336x624", b)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/command", "text/plain", "5")
	rec := do(t, h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "epd_refreshes_total 1") {
		t.Errorf("metrics output lacks epd_refreshes_total 1:\n%s", rec.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s, _ := newTestServer(t, cfg)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /health without auth = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/status without auth = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/status with auth = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/status with wrong password = %d, want 401", rec.Code)
	}
}
