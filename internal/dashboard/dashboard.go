// Package dashboard orchestrates the finance dashboard: authentication,
// analytics refreshes, tab switching, drill-downs and the auxiliary lists.
//
// All state lives in a state.App guarded by one mutex. The mutex is never
// held across a backend call, so the unauthorized handler (which runs inside
// the API client) can always take it.
package dashboard

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/render"
	"finboard/internal/sheets"
	"finboard/internal/state"
	"finboard/internal/storage"
)

var (
	// ErrNotInitialized is returned by data operations before a successful login.
	ErrNotInitialized = errors.New("dashboard not initialized")
	ErrEmptyBucket    = errors.New("empty bucket id")
	ErrNoExporter     = errors.New("no export target configured")
)

const defaultHistoryDays = 30

// Backend is the subset of the API client the dashboard drives.
type Backend interface {
	OnUnauthorized(h api.UnauthorizedHandler)
	SetToken(token string)
	AuthStatus(ctx context.Context) (api.AuthStatus, error)
	Login(ctx context.Context, password string) (string, error)
	SetPassword(ctx context.Context, password string) (string, error)
	Analytics(ctx context.Context, q core.AnalyticsQuery) (*core.Snapshot, error)
	MerchantBreakdown(ctx context.Context, baseID, opType string) ([]core.MerchantRow, error)
	Operations(ctx context.Context, q core.OperationsQuery) ([]core.Operation, error)
	Files(ctx context.Context) ([]core.File, error)
	DeleteFile(ctx context.Context, id string) error
	Import(ctx context.Context, bank, filename string, r io.Reader) (api.ImportResult, error)
	ImportDemo(ctx context.Context) error
	Reset(ctx context.Context) error
	AgentAnswer(ctx context.Context, question string) (string, error)
}

var _ Backend = (*api.Client)(nil)

// Publisher receives dashboard events. Publishing is best effort.
type Publisher interface {
	PublishEvent(ctx context.Context, ev amqp.Event) error
}

// ErrorSink is the single destination for request and render failures.
type ErrorSink interface {
	Report(ctx context.Context, op string, err error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, op string, err error)

func (f ErrorSinkFunc) Report(ctx context.Context, op string, err error) { f(ctx, op, err) }

type logSink struct {
	logger *log.Logger
}

func (s logSink) Report(ctx context.Context, op string, err error) {
	s.logger.ErrorContext(ctx, "Operation failed",
		log.FieldOperation, op,
		log.FieldErrorType, errorType(err),
		log.FieldError, err.Error())
}

type Dashboard struct {
	backend  Backend
	dispatch *render.Dispatcher
	prefs    storage.Prefs
	sink     ErrorSink
	pub      Publisher
	export   sheets.TableWriter
	logger   *log.Logger
	now      func() time.Time

	historyLimit int
	recentLimit  int
	recentDays   int

	mu  sync.Mutex
	app *state.App
}

type Option func(*Dashboard)

func WithPrefs(p storage.Prefs) Option {
	return func(d *Dashboard) { d.prefs = p }
}

func WithErrorSink(s ErrorSink) Option {
	return func(d *Dashboard) { d.sink = s }
}

func WithPublisher(p Publisher) Option {
	return func(d *Dashboard) { d.pub = p }
}

// WithExporter sets where ExportHistory and ExportTab write.
func WithExporter(w sheets.TableWriter) Option {
	return func(d *Dashboard) { d.export = w }
}

func WithLogger(l *log.Logger) Option {
	return func(d *Dashboard) { d.logger = l.WithComponent(log.ComponentDashboard) }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

// WithLimits overrides the operation history limit and the recent
// operations window. Non-positive values keep the defaults.
func WithLimits(historyLimit, recentLimit, recentDays int) Option {
	return func(d *Dashboard) {
		if historyLimit > 0 {
			d.historyLimit = historyLimit
		}
		if recentLimit > 0 {
			d.recentLimit = recentLimit
		}
		if recentDays > 0 {
			d.recentDays = recentDays
		}
	}
}

// WithTopN sets the initial size of the top categories chart.
func WithTopN(n int) Option {
	return func(d *Dashboard) { _ = d.app.Settings.SetTopN(n) }
}

// New creates a dashboard over backend drawing through dispatch and
// registers the session reset flow with the backend.
func New(backend Backend, dispatch *render.Dispatcher, opts ...Option) *Dashboard {
	d := &Dashboard{
		backend:      backend,
		dispatch:     dispatch,
		prefs:        storage.NewMemoryPrefs(),
		logger:       log.Discard().WithComponent(log.ComponentDashboard),
		now:          time.Now,
		historyLimit: 500,
		recentLimit:  15,
		recentDays:   7,
		app:          state.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = logSink{logger: d.logger}
	}
	d.app.History.Query.Limit = d.historyLimit
	backend.OnUnauthorized(d.handleUnauthorized)
	return d
}

// Status is a read-only copy of the parts of the state a front end shows
// besides the frames.
type Status struct {
	Active       core.Tab
	Auth         state.Auth
	Inputs       core.Period
	Settings     state.Settings
	Toast        string
	Messages     []state.Message
	Goals        string
	Profile      core.Profile
	HistoryQuery core.OperationsQuery
	Files        []core.File
	Levels       map[core.Family]state.Level
}

func (d *Dashboard) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	levels := make(map[core.Family]state.Level, len(d.app.Cursors))
	for f, c := range d.app.Cursors {
		levels[f] = c.Level
	}
	return Status{
		Active:       d.app.Active,
		Auth:         d.app.Auth,
		Inputs:       d.app.Inputs,
		Settings:     d.app.Settings,
		Toast:        d.app.Toast,
		Messages:     append([]state.Message(nil), d.app.Messages...),
		Goals:        d.app.Goals,
		Profile:      d.app.Profile,
		HistoryQuery: d.app.History.Query,
		Files:        append([]core.File(nil), d.app.Files...),
		Levels:       levels,
	}
}

// Ready reports whether the session is open and the overview has data.
func (d *Dashboard) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.app.HomeSnapshot()
	return d.app.Auth.Initialized && ok
}

// Frame derives the complete frame for tab: its charts, the overview and
// the lists. A tab without a cached snapshot contributes nothing.
func (d *Dashboard) Frame(tab core.Tab) (render.Frame, error) {
	if !tab.Valid() {
		return render.Frame{}, state.ErrUnknownTab
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := render.BuildTab(d.app, tab)
	if err != nil && !errors.Is(err, render.ErrNoSnapshot) {
		return render.Frame{}, err
	}
	f.Tab = tab
	return f.Merge(render.BuildHome(d.app)).Merge(render.BuildLists(d.app)), nil
}

// ClearToast drops the transient status message.
func (d *Dashboard) ClearToast() {
	d.mu.Lock()
	d.app.Toast = ""
	d.mu.Unlock()
}

func (d *Dashboard) toast(text string) {
	d.mu.Lock()
	d.app.Toast = text
	d.mu.Unlock()
}

// fail routes a failed call. An auth rejection was already handled by the
// reset flow and is only logged.
func (d *Dashboard) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		d.logger.InfoContext(ctx, "Operation stopped, session reset",
			log.FieldOperation, op,
			log.FieldErrorType, log.ErrorTypeAuth)
		return err
	}
	d.sink.Report(ctx, op, err)
	return err
}

// applyLocked draws f. Surface failures go to the sink and do not fail the
// calling operation.
func (d *Dashboard) applyLocked(ctx context.Context, f render.Frame) {
	if err := d.dispatch.Apply(f); err != nil {
		d.sink.Report(ctx, log.OpRender, err)
	}
}

func (d *Dashboard) drawLocked(ctx context.Context, ch render.Chart) {
	if err := d.dispatch.DrawChart(ch); err != nil {
		d.sink.Report(ctx, log.OpRender, err)
	}
}

func (d *Dashboard) publish(ctx context.Context, ev amqp.Event) {
	if d.pub == nil {
		return
	}
	if err := d.pub.PublishEvent(ctx, ev); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish dashboard event",
			"event_type", ev.Type,
			log.FieldError, err.Error())
	}
}

func errorType(err error) string {
	var se *api.StatusError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return log.ErrorTypeAuth
	case errors.As(err, &se):
		return log.ErrorTypeStatus
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return log.ErrorTypeNetwork
	default:
		return log.ErrorTypeInternal
	}
}
