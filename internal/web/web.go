// Package web serves the panel status API: health, session snapshot, remote
// commands, a PNG preview of the frame buffer and the driver metrics.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"epdpanel/internal/config"
	"epdpanel/internal/dispatch"
	appLog "epdpanel/internal/log"
)

const (
	statusTTL       = time.Second
	maxCommandBytes = 4 << 10
)

// Server provides the HTTP API over a session.
type Server struct {
	cfg     *config.Config
	session *dispatch.Session
	disp    *dispatch.Dispatcher
	metrics http.Handler
	mux     *http.ServeMux

	// A snapshot waits for the session lock, which a refresh holds for
	// seconds, so polled status is served from a short-lived cache.
	statusMu    sync.RWMutex
	statusCache *statusCache
}

type statusCache struct {
	snap      dispatch.Snapshot
	updatedAt time.Time
}

// NewServer constructs a new Server. metrics may be nil.
func NewServer(cfg *config.Config, session *dispatch.Session, disp *dispatch.Dispatcher, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		session: session,
		disp:    disp,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Status.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="EPDPanel", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/command", s.handleCommand)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	dispatch.Snapshot
	Register  string    `json:"register,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleStatus returns the session snapshot.
//
// GET /api/status?register=1
//   - register: also read the controller status register (bus traffic,
//     bypasses the cache)
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if parseIntDefault(r.URL.Query().Get("register"), 0) != 0 {
		resp := statusResponse{Snapshot: s.session.Snapshot(), UpdatedAt: time.Now()}
		reg, err := s.session.ReadStatus()
		if err != nil {
			appLog.Error("status register read failed", err)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		resp.Register = fmt.Sprintf("0x%02X", reg)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	now := time.Now()
	s.statusMu.RLock()
	sc := s.statusCache
	s.statusMu.RUnlock()
	if sc != nil && now.Sub(sc.updatedAt) < statusTTL {
		writeJSON(w, http.StatusOK, statusResponse{Snapshot: sc.snap, UpdatedAt: sc.updatedAt})
		return
	}

	snap := s.session.Snapshot()
	s.statusMu.Lock()
	s.statusCache = &statusCache{snap: snap, updatedAt: now}
	s.statusMu.Unlock()
	writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, UpdatedAt: now})
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// handleCommand runs one console command.
//
// POST /api/command with {"command": "..."} or a text/plain body.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	line := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req commandRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		line = req.Command
	}
	line = strings.TrimSpace(line)
	if line == "" {
		writeError(w, http.StatusBadRequest, "empty command")
		return
	}

	var out bytes.Buffer
	err = s.disp.Exec(&out, line)
	s.invalidateStatus()

	resp := commandResponse{Command: line, Output: out.String()}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrUnknownCommand) || errors.Is(err, dispatch.ErrUsage) {
			status = http.StatusBadRequest
		}
		appLog.Error("remote command failed", err, "command", line)
	} else {
		appLog.Info("remote command", "command", line)
	}
	writeJSON(w, status, resp)
}

func (s *Server) invalidateStatus() {
	s.statusMu.Lock()
	s.statusCache = nil
	s.statusMu.Unlock()
}

// handlePreview renders the frame buffer as PNG.
//
// GET /preview.png?scale=2
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	scale := parseIntDefault(r.URL.Query().Get("scale"), 2)
	if scale < 1 {
		scale = 1
	}
	if scale > 8 {
		scale = 8
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, s.session.Preview(scale)); err != nil {
		appLog.Error("failed to encode preview", err)
		writeError(w, http.StatusInternalServerError, "failed to encode preview")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
