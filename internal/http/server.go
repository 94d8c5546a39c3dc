// Package http serves a read-only JSON view of the running dashboard for
// health checks and external viewers.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"finboard/internal/core"
	"finboard/internal/dashboard"
	"finboard/internal/log"
	"finboard/internal/middleware/trace"
	"finboard/internal/render"
	"finboard/internal/state"
)

// Dashboard is the part of the dashboard the viewer reads from.
type Dashboard interface {
	Ready() bool
	Status() dashboard.Status
	Frame(tab core.Tab) (render.Frame, error)
	Refresh(ctx context.Context) error
}

var _ Dashboard = (*dashboard.Dashboard)(nil)

type Server struct {
	http.Server
	dash        Dashboard
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	tracer      *trace.Middleware

	refreshTimeout time.Duration
	shutdownOnce   sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, d Dashboard, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		dash:           d,
		rateLimiter:    newRateLimiter(6, time.Minute),
		metrics:        &securityMetrics{},
		tracer:         trace.NewMiddleware(extractClientIP),
		refreshTimeout: 30 * time.Second,
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.withSecurityHeaders(s.handleStatus))
	mux.HandleFunc("/frame", s.withSecurityHeaders(s.handleFrame))
	mux.HandleFunc("/refresh", s.withSecurityHeaders(s.handleRefresh))
	mux.HandleFunc("/metrics", s.withSecurityHeaders(s.handleMetrics))

	s.Handler = s.tracer.Handler(log.Middleware(logger.WithComponent(log.ComponentViewer))(mux))
	return s
}

// Shutdown stops the HTTP server. Later calls return nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once a session is open and the overview loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.dash.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.dash.Status())
}

// handleFrame returns the frame for ?tab=, defaulting to the active tab.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	tab := core.Tab(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("tab"))))
	if tab == "" {
		tab = s.dash.Status().Active
	}

	f, err := s.dash.Frame(tab)
	switch {
	case errors.Is(err, state.ErrUnknownTab):
		writeError(w, http.StatusBadRequest, "unknown tab: "+string(tab))
	case err != nil:
		slog.ErrorContext(r.Context(), "Frame build failed", "tab", tab, "error", err)
		writeError(w, http.StatusInternalServerError, "frame unavailable")
	default:
		writeJSON(w, http.StatusOK, f)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.refreshTimeout)
	defer cancel()

	err := s.dash.Refresh(ctx)
	switch {
	case errors.Is(err, dashboard.ErrNotInitialized):
		writeError(w, http.StatusConflict, "session not started")
	case err != nil:
		slog.WarnContext(r.Context(), "Refresh from viewer failed", "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type metricsBody struct {
	Requests trace.Metrics    `json:"requests"`
	Security securitySnapshot `json:"security"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsBody{Requests: s.tracer.Metrics(), Security: s.metrics.snapshot()})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
