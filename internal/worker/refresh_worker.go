package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"finboard/internal/api"
	"finboard/internal/dashboard"
)

// Refresher is what the refresh worker drives; *dashboard.Dashboard satisfies it.
// Reload leaves open drill-downs alone, so a scheduled run never moves the
// user back to the aggregate level.
type Refresher interface {
	Reload(ctx context.Context) error
}

var _ Refresher = (*dashboard.Dashboard)(nil)

// RefreshWorker refreshes the active tab on a cron schedule.
type RefreshWorker struct {
	target   Refresher
	schedule string
	loc      *time.Location
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	runs    int
}

func NewRefreshWorker(target Refresher, schedule string, loc *time.Location, timeout time.Duration) *RefreshWorker {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RefreshWorker{target: target, schedule: schedule, loc: loc, timeout: timeout}
}

// Start schedules the refresh job. It returns an error for an invalid
// schedule and does nothing when already started.
func (w *RefreshWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(w.loc))
	if _, err := c.AddFunc(w.schedule, func() { w.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("unable to schedule refresh: %w", err)
	}
	c.Start()
	w.cron = c

	slog.Info("Refresh scheduler started",
		"component", "worker",
		"schedule", w.schedule,
		"timezone", w.loc.String())
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (w *RefreshWorker) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	slog.Info("Refresh scheduler stopped", "component", "worker")
}

// RunOnce performs one refresh. Overlapping runs are skipped. Refreshes
// before login and after a session reset are expected and not logged as
// failures.
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		slog.DebugContext(ctx, "Refresh already running, skipping", "component", "worker")
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.runs++
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := w.target.Reload(ctx)
	switch {
	case err == nil:
		slog.DebugContext(ctx, "Scheduled refresh completed",
			"component", "worker",
			"duration_ms", time.Since(start).Milliseconds())
	case errors.Is(err, dashboard.ErrNotInitialized), errors.Is(err, api.ErrUnauthorized):
		slog.DebugContext(ctx, "Scheduled refresh skipped, no session", "component", "worker")
	default:
		slog.WarnContext(ctx, "Scheduled refresh failed",
			"component", "worker",
			"error", err)
	}
}

// Runs returns the number of completed refresh attempts.
func (w *RefreshWorker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}
