package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/dashboard"
	"finboard/internal/render"
	"finboard/internal/state"
)

type fakeDash struct {
	ready      bool
	active     core.Tab
	refreshErr error
	refreshes  int
}

func (f *fakeDash) Ready() bool { return f.ready }

func (f *fakeDash) Status() dashboard.Status { return dashboard.Status{Active: f.active, Toast: "ok"} }

func (f *fakeDash) Frame(tab core.Tab) (render.Frame, error) {
	if !tab.Valid() {
		return render.Frame{}, state.ErrUnknownTab
	}
	return render.Frame{Tab: tab, Texts: []render.Text{{Name: render.TextGoals, Lines: []string{"save"}}}}, nil
}

func (f *fakeDash) Refresh(ctx context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func newTestServer(t *testing.T, d *fakeDash) *Server {
	t.Helper()
	s := NewServer(":0", d, nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestHealthAndReady(t *testing.T) {
	d := &fakeDash{}
	s := newTestServer(t, d)

	if rr := do(s, http.MethodGet, "/healthz"); rr.Code != http.StatusOK {
		t.Errorf("/healthz status = %d", rr.Code)
	}
	if rr := do(s, http.MethodGet, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before login status = %d, want 503", rr.Code)
	}
	d.ready = true
	if rr := do(s, http.MethodGet, "/readyz"); rr.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rr.Code)
	}
}

func TestFrame(t *testing.T) {
	s := newTestServer(t, &fakeDash{active: core.TabIncome})

	tests := []struct {
		name    string
		target  string
		status  int
		wantTab core.Tab
	}{
		{"explicit tab", "/frame?tab=quick", http.StatusOK, core.TabQuick},
		{"case insensitive", "/frame?tab=EXPENSE", http.StatusOK, core.TabExpense},
		{"active tab by default", "/frame", http.StatusOK, core.TabIncome},
		{"unknown tab", "/frame?tab=loans", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(s, http.MethodGet, tt.target)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var f render.Frame
			if err := json.Unmarshal(rr.Body.Bytes(), &f); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if f.Tab != tt.wantTab {
				t.Errorf("tab = %q, want %q", f.Tab, tt.wantTab)
			}
			if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
		})
	}

	if rr := do(s, http.MethodPost, "/frame"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /frame status = %d", rr.Code)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, &fakeDash{active: core.TabTransfers})
	rr := do(s, http.MethodGet, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"Active":"transfers"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusNoContent},
		{"no session", dashboard.ErrNotInitialized, http.StatusConflict},
		{"backend error", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDash{refreshErr: tt.err}
			s := newTestServer(t, d)
			if rr := do(s, http.MethodPost, "/refresh"); rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if d.refreshes != 1 {
				t.Errorf("refreshes = %d", d.refreshes)
			}
		})
	}
}

func TestRefreshHidesBackendDetail(t *testing.T) {
	d := &fakeDash{refreshErr: &api.StatusError{
		Method: http.MethodGet,
		Path:   "/api/analytics?start=2024-01-01",
		Code:   http.StatusInternalServerError,
		Body:   "traceback: db locked",
	}}
	s := newTestServer(t, d)

	rr := do(s, http.MethodPost, "/refresh")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	body := rr.Body.String()
	for _, leak := range []string{"/api/analytics", "traceback", "db locked"} {
		if strings.Contains(body, leak) {
			t.Errorf("body %q exposes %q", body, leak)
		}
	}
	if !strings.Contains(body, "refresh failed") {
		t.Errorf("body = %q, want generic message", body)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	d := &fakeDash{}
	s := newTestServer(t, d)
	for i := 0; i < 6; i++ {
		if rr := do(s, http.MethodPost, "/refresh"); rr.Code != http.StatusNoContent {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr := do(s, http.MethodPost, "/refresh")
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
	if d.refreshes != 6 {
		t.Errorf("refreshes = %d, want 6", d.refreshes)
	}
	if s.metrics.snapshot().RateLimitHits != 1 {
		t.Errorf("metrics = %+v", s.metrics.snapshot())
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	s := newTestServer(t, &fakeDash{})
	rr := do(s, http.MethodGet, "/frame?tab=../../etc/passwd")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if s.metrics.snapshot().SuspiciousRequests != 1 {
		t.Errorf("metrics = %+v", s.metrics.snapshot())
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.allow("1.2.3.4", nil); got != want {
			t.Errorf("allow #%d = %v, want %v", i, got, want)
		}
	}
	if !rl.allow("5.6.7.8", nil) {
		t.Error("other client limited")
	}

	now = now.Add(time.Minute)
	if !rl.allow("1.2.3.4", nil) {
		t.Error("window did not reset")
	}

	now = now.Add(time.Hour)
	for _, ip := range []string{"1.2.3.4", "5.6.7.8"} {
		if _, ok := rl.clients.Get(ip); ok {
			t.Errorf("stale client %s kept", ip)
		}
	}
}

func TestRateLimiterForgetsLeastRecentClient(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("10.0.0.1", nil) {
		t.Fatal("first request limited")
	}
	for i := 0; i < maxTrackedClients; i++ {
		rl.allow(fmt.Sprintf("10.1.%d.%d", i/256, i%256), nil)
	}
	if rl.clients.Len() != maxTrackedClients {
		t.Errorf("tracked clients = %d, want %d", rl.clients.Len(), maxTrackedClients)
	}
	if !rl.allow("10.0.0.1", nil) {
		t.Error("evicted client still limited")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:5000", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "127.0.0.1:5000", "garbage", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsAndRequestID(t *testing.T) {
	s := newTestServer(t, &fakeDash{ready: true})
	rr := do(s, http.MethodGet, "/healthz")
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}

	rr = do(s, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body metricsBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The metrics request itself is counted only after it completes.
	if body.Requests.TotalRequests != 1 {
		t.Errorf("total requests = %d, want 1", body.Requests.TotalRequests)
	}
}
