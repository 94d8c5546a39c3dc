package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/render"
	"finboard/internal/render/memory"
	sheetsmem "finboard/internal/sheets/memory"
	"finboard/internal/state"
	"finboard/internal/storage"
)

const (
	testPassword = "secret"
	testToken    = "tok-1"
)

var testNow = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

// fakeBackend is an in-process finance backend.
type fakeBackend struct {
	mu          sync.Mutex
	passwordSet bool
	rejectAll   bool
	failPeriod  bool
	answer      string

	analytics []url.Values
	merchants []url.Values
	ops       []url.Values
	imports   []string
	deleted   []string
	resets    int
	demos     int

	// holdTab makes the next period-scoped analytics request wait for
	// release after signalling tabArrived.
	holdTab    bool
	tabArrived chan struct{}
	tabRelease chan struct{}
	tabServed  int

	// A merchant request for base_id "slow" waits for slowRelease.
	slowArrived chan struct{}
	slowRelease chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		passwordSet: true,
		tabArrived:  make(chan struct{}),
		tabRelease:  make(chan struct{}),
		slowArrived: make(chan struct{}),
		slowRelease: make(chan struct{}),
	}
}

func snapshotJSON(expenseName string) string {
	return fmt.Sprintf(`{
		"totals": {"income": 1000, "expense": -600, "net": 400},
		"unknown": 1,
		"unmapped": [{"description": "x"}],
		"by_base_expense": [
			{"id": "food", "name": %q, "amount": -400},
			{"id": "rent", "name": "Rent", "amount": -200}
		],
		"by_base_income": [{"id": "salary", "name": "Salary", "amount": 1000}],
		"transfers": [{"id": "tr", "name": "Transfers", "amount": -50}],
		"trend": [
			{"label": "2024-01", "income": 500, "expense": 300},
			{"label": "2024-02", "income": 500, "expense": 300}
		],
		"period_all": {"start": "2024-01-01", "end": "2024-03-31"},
		"ops_count": 10,
		"ops_count_total": 12
	}`, expenseName)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch path {
	case "/api/auth/status":
		f.mu.Lock()
		set := f.passwordSet
		f.mu.Unlock()
		fmt.Fprintf(w, `{"password_set": %t}`, set)
		return
	case "/api/auth/login", "/api/auth/set":
		var in struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if path == "/api/auth/login" && in.Password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "invalid password"}`))
			return
		}
		fmt.Fprintf(w, `{"token": %q}`, testToken)
		return
	}

	f.mu.Lock()
	reject := f.rejectAll
	f.mu.Unlock()
	if reject || r.Header.Get(api.TokenHeader) != testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case path == "/api/analytics":
		f.serveAnalytics(w, r)
	case path == "/api/merchant-breakdown":
		q := r.URL.Query()
		f.mu.Lock()
		f.merchants = append(f.merchants, q)
		f.mu.Unlock()
		base := q.Get("base_id")
		if base == "slow" {
			f.slowArrived <- struct{}{}
			<-f.slowRelease
		}
		fmt.Fprintf(w, `{"items": [
			{"merchant": "%s Shop", "amount": 300},
			{"merchant": "Перевод между своими счетами", "amount": 50}
		]}`, base)
	case path == "/api/operations":
		f.mu.Lock()
		f.ops = append(f.ops, r.URL.Query())
		f.mu.Unlock()
		w.Write([]byte(`{"items": [{"date": "2024-03-30", "bank": "alfa", "description": "Coffee", "category_name": "Food", "amount": -250}]}`))
	case path == "/api/files" && r.Method == http.MethodGet:
		w.Write([]byte(`{"files": [{"id": "f1", "name": "march.csv", "bank": "alfa", "count": 12}]}`))
	case strings.HasPrefix(path, "/api/files/") && r.Method == http.MethodDelete:
		f.mu.Lock()
		f.deleted = append(f.deleted, strings.TrimPrefix(path, "/api/files/"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case path == "/api/import":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.imports = append(f.imports, r.FormValue("bank"))
		f.mu.Unlock()
		w.Write([]byte(`{"imported": 3, "totals": {"income": 0, "expense": -10, "net": -10}}`))
	case path == "/api/import-demo":
		f.mu.Lock()
		f.demos++
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	case path == "/api/reset":
		f.mu.Lock()
		f.resets++
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	case path == "/api/agent-answer":
		f.mu.Lock()
		answer := f.answer
		f.mu.Unlock()
		fmt.Fprintf(w, `{"answer": %q}`, answer)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBackend) serveAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scoped := q.Get("start_date") != ""

	f.mu.Lock()
	f.analytics = append(f.analytics, q)
	fail := f.failPeriod && scoped
	hold := f.holdTab && scoped
	if hold {
		f.holdTab = false
	}
	name := "Food"
	if scoped {
		f.tabServed++
		if f.tabServed > 1 {
			name = fmt.Sprintf("Food v%d", f.tabServed)
		}
	}
	f.mu.Unlock()

	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if hold {
		name = "Food held"
		f.tabArrived <- struct{}{}
		<-f.tabRelease
	}
	w.Write([]byte(snapshotJSON(name)))
}

func (f *fakeBackend) analyticsCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.analytics...)
}

func (f *fakeBackend) merchantCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.merchants...)
}

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Report(_ context.Context, _ string, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev amqp.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func (p *recordingPublisher) has(eventType string) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type harness struct {
	d       *Dashboard
	backend *fakeBackend
	surface *memory.Surface
	sink    *recordingSink
	pub     *recordingPublisher
	prefs   *storage.MemoryPrefs
	export  *sheetsmem.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	h := &harness{
		backend: fb,
		surface: memory.New(),
		sink:    &recordingSink{},
		pub:     &recordingPublisher{},
		prefs:   storage.NewMemoryPrefs(),
		export:  sheetsmem.New(),
	}
	h.d = New(api.NewClient(srv.URL, 5*time.Second),
		render.NewDispatcher(h.surface, nil),
		WithPrefs(h.prefs),
		WithErrorSink(h.sink),
		WithPublisher(h.pub),
		WithExporter(h.export),
		WithClock(func() time.Time { return testNow }))
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if err := h.d.Login(context.Background(), testPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func TestStart_ShowsCreateScreenWithoutPassword(t *testing.T) {
	h := newHarness(t)
	h.backend.passwordSet = false

	if err := h.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	st := h.d.Status()
	if !st.Auth.ScreenVisible || st.Auth.Mode != state.AuthCreate || st.Auth.Initialized {
		t.Errorf("auth = %+v, want visible create screen", st.Auth)
	}
	if n := len(h.backend.analyticsCalls()); n != 0 {
		t.Errorf("analytics calls = %d, want 0", n)
	}
}

func TestStart_StoredTokenEntersApp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.prefs.Set(ctx, storage.KeyAuthToken, testToken); err != nil {
		t.Fatal(err)
	}

	if err := h.d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	st := h.d.Status()
	if st.Auth.ScreenVisible || !st.Auth.Initialized {
		t.Errorf("auth = %+v, want app entered", st.Auth)
	}
	if !h.d.Ready() {
		t.Error("Ready() = false after start")
	}
	if _, ok := h.surface.LastChart(render.CanvasExpenseShare); !ok {
		t.Error("expense share chart not drawn")
	}
	for _, name := range []render.Canvas{render.TableFiles, render.TableHistory, render.TableRecentOps} {
		if _, ok := h.surface.LastTable(name); !ok {
			t.Errorf("table %s not drawn", name)
		}
	}
}

func TestStart_RejectedStoredTokenShowsLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.prefs.Set(ctx, storage.KeyAuthToken, "expired")

	if err := h.d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	st := h.d.Status()
	if !st.Auth.ScreenVisible || st.Auth.Initialized || st.Auth.Mode != state.AuthLogin {
		t.Errorf("auth = %+v, want login screen", st.Auth)
	}
	if _, ok, _ := h.prefs.Get(ctx, storage.KeyAuthToken); ok {
		t.Error("rejected token still stored")
	}
	if h.sink.count() != 0 {
		t.Errorf("sink got %d errors, want 0", h.sink.count())
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.d.Login(ctx, "wrong")
	if !errors.Is(err, api.ErrInvalidPassword) {
		t.Fatalf("Login(wrong) error = %v, want ErrInvalidPassword", err)
	}
	if st := h.d.Status(); !st.Auth.ScreenVisible {
		t.Error("auth screen hidden after wrong password")
	}
	if h.sink.count() != 0 {
		t.Error("wrong password reported to the error sink")
	}

	h.login(t)
	token, ok, _ := h.prefs.Get(ctx, storage.KeyAuthToken)
	if !ok || token != testToken {
		t.Errorf("stored token = %q, %v", token, ok)
	}
	st := h.d.Status()
	if st.HistoryQuery.Period.Start != "2024-03-01" || st.HistoryQuery.Limit != 500 {
		t.Errorf("history query = %+v, want last 30 days with limit 500", st.HistoryQuery)
	}
}

func TestRefresh_RequiresSession(t *testing.T) {
	h := newHarness(t)
	if err := h.d.Refresh(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Refresh() error = %v, want ErrNotInitialized", err)
	}
}

func TestRefresh_QueriesAndBackfill(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	calls := h.backend.analyticsCalls()
	if len(calls) != 2 {
		t.Fatalf("analytics calls = %d, want 2", len(calls))
	}
	for _, q := range calls {
		if q.Get("exclude_transfers") != "true" || q.Has("start_date") {
			t.Errorf("first refresh query = %v, want all time without transfers", q)
		}
	}

	st := h.d.Status()
	want := core.Period{Start: "2024-01-01", End: "2024-03-31"}
	if st.Inputs != want {
		t.Errorf("inputs = %+v, want backfilled %+v", st.Inputs, want)
	}

	if err := h.d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	var scoped int
	for _, q := range h.backend.analyticsCalls()[2:] {
		if q.Get("start_date") == "2024-01-01" && q.Get("end_date") == "2024-03-31" {
			scoped++
		}
	}
	if scoped != 1 {
		t.Errorf("scoped calls after backfill = %d, want 1", scoped)
	}
	if !h.pub.has(amqp.EventRefreshed) {
		t.Errorf("events = %v, want refreshed", h.pub.types())
	}
}

func TestSwitchTab_UsesCache(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.SwitchTab(ctx, core.TabTransfers); err != nil {
		t.Fatalf("SwitchTab(transfers) error = %v", err)
	}
	calls := h.backend.analyticsCalls()
	if len(calls) != 4 {
		t.Fatalf("analytics calls = %d, want 4", len(calls))
	}
	var includes int
	for _, q := range calls[2:] {
		if q.Get("exclude_transfers") == "false" {
			includes++
		}
	}
	if includes != 1 {
		t.Errorf("transfers tab queries including transfers = %d, want 1", includes)
	}
	if _, ok := h.surface.LastTable(render.TableTransferList); !ok {
		t.Error("transfer list not drawn")
	}

	if err := h.d.SwitchTab(ctx, core.TabExpense); err != nil {
		t.Fatalf("SwitchTab(expense) error = %v", err)
	}
	if n := len(h.backend.analyticsCalls()); n != 4 {
		t.Errorf("analytics calls after cached switch = %d, want 4", n)
	}
	if st := h.d.Status(); st.Active != core.TabExpense || st.Inputs.Start != "2024-01-01" {
		t.Errorf("status = %+v, want expense with its own period", st)
	}
	if err := h.d.SwitchTab(ctx, core.Tab("bogus")); !errors.Is(err, state.ErrUnknownTab) {
		t.Errorf("SwitchTab(bogus) error = %v", err)
	}
}

func TestSetPeriod_InactiveTabOnlyStores(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	before := len(h.backend.analyticsCalls())

	p := core.Period{Start: "2024-02-01", End: "2024-02-29"}
	if err := h.d.SetPeriod(ctx, core.TabIncome, p); err != nil {
		t.Fatalf("SetPeriod() error = %v", err)
	}
	if n := len(h.backend.analyticsCalls()); n != before {
		t.Errorf("analytics calls = %d, want %d", n, before)
	}
	if st := h.d.Status(); st.Inputs.Start != "2024-01-01" {
		t.Errorf("inputs changed to %+v", st.Inputs)
	}

	if err := h.d.SwitchTab(ctx, core.TabIncome); err != nil {
		t.Fatalf("SwitchTab() error = %v", err)
	}
	calls := h.backend.analyticsCalls()[before:]
	var found bool
	for _, q := range calls {
		if q.Get("start_date") == p.Start && q.Get("end_date") == p.End {
			found = true
		}
	}
	if !found {
		t.Errorf("income refresh did not send the stored period: %v", calls)
	}

	if err := h.d.SetPeriod(ctx, core.TabIncome, core.Period{Start: "2024-03-01", End: "2024-02-01"}); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("SetPeriod(reversed) error = %v, want ErrInvalidPeriod", err)
	}
}

func TestSetPeriodStart_ActiveTabRefetches(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	before := len(h.backend.analyticsCalls())

	if err := h.d.SetPeriodStart(context.Background(), "2024-02-15"); err != nil {
		t.Fatalf("SetPeriodStart() error = %v", err)
	}
	if n := len(h.backend.analyticsCalls()); n != before+2 {
		t.Errorf("analytics calls = %d, want %d", n, before+2)
	}
	if st := h.d.Status(); st.Inputs.Start != "2024-02-15" || st.Inputs.End != "2024-03-31" {
		t.Errorf("inputs = %+v", st.Inputs)
	}
}

func TestApplyQuickRange(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	if err := h.d.ApplyQuickRange(context.Background(), core.TabExpense, core.RangeWeek); err != nil {
		t.Fatalf("ApplyQuickRange() error = %v", err)
	}
	want := core.Period{Start: "2024-03-24", End: "2024-03-31"}
	if st := h.d.Status(); st.Inputs != want {
		t.Errorf("inputs = %+v, want %+v", st.Inputs, want)
	}
	if err := h.d.ApplyQuickRange(context.Background(), core.TabExpense, "decade"); !errors.Is(err, core.ErrUnknownRange) {
		t.Errorf("ApplyQuickRange(decade) error = %v", err)
	}
}

func TestRefresh_FailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	opsBefore := len(h.backend.ops)

	h.backend.mu.Lock()
	h.backend.failPeriod = true
	h.backend.mu.Unlock()

	err := h.d.Refresh(ctx)
	var se *api.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("Refresh() error = %v, want status 500", err)
	}
	if h.sink.count() != 1 {
		t.Errorf("sink errors = %d, want 1", h.sink.count())
	}
	f, err := h.d.Frame(core.TabExpense)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	ch, _ := f.Chart(render.CanvasExpenseShare)
	if len(ch.Labels) == 0 || ch.Labels[0] != "Food" {
		t.Errorf("cached labels = %v, want the previous snapshot", ch.Labels)
	}
	h.backend.mu.Lock()
	after := len(h.backend.ops)
	h.backend.mu.Unlock()
	if after != opsBefore {
		t.Errorf("lists reloaded after a failed refresh")
	}
}

func TestRefresh_UnauthorizedResetsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	h.backend.mu.Lock()
	h.backend.rejectAll = true
	h.backend.mu.Unlock()

	draws, _, _ := h.surface.Stats()
	err := h.d.Refresh(ctx)
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("Refresh() error = %v, want ErrUnauthorized", err)
	}
	st := h.d.Status()
	if !st.Auth.ScreenVisible || st.Auth.Initialized {
		t.Errorf("auth = %+v, want reset session", st.Auth)
	}
	if _, ok, _ := h.prefs.Get(ctx, storage.KeyAuthToken); ok {
		t.Error("token still stored after 401")
	}
	if after, _, _ := h.surface.Stats(); after != draws {
		t.Errorf("draws = %d after 401, want %d", after, draws)
	}
	if h.sink.count() != 0 {
		t.Errorf("sink errors = %d, want 0", h.sink.count())
	}
	if !h.pub.has(amqp.EventUnauthorized) {
		t.Errorf("events = %v, want unauthorized", h.pub.types())
	}

	h.backend.mu.Lock()
	h.backend.rejectAll = false
	h.backend.mu.Unlock()
	h.login(t)
	if st := h.d.Status(); !st.Auth.Initialized {
		t.Error("login after reset did not start the app")
	}
}

func TestRefresh_InOrderResponsesKeepLatest(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	if err := h.d.SetPeriod(ctx, core.TabExpense, core.Period{Start: "2024-01-01", End: "2024-01-31"}); err != nil {
		t.Fatal(err)
	}
	if err := h.d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	ch, _ := h.surface.LastChart(render.CanvasExpenseShare)
	if len(ch.Labels) == 0 || ch.Labels[0] != "Food v2" {
		t.Errorf("labels = %v, want the second response", ch.Labels)
	}
}

func TestRefresh_LateOlderResponseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	if err := h.d.SetPeriod(ctx, core.TabExpense, core.Period{Start: "2024-01-01", End: "2024-01-31"}); err != nil {
		t.Fatal(err)
	}

	h.backend.mu.Lock()
	h.backend.holdTab = true
	h.backend.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- h.d.Refresh(ctx) }()
	<-h.backend.tabArrived

	if err := h.d.Refresh(ctx); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	close(h.backend.tabRelease)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}

	f, err := h.d.Frame(core.TabExpense)
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := f.Chart(render.CanvasExpenseShare)
	if len(ch.Labels) == 0 || ch.Labels[0] == "Food held" {
		t.Errorf("cached labels = %v, the older response overwrote the newer one", ch.Labels)
	}
	drawn, _ := h.surface.LastChart(render.CanvasExpenseShare)
	if len(drawn.Labels) == 0 || drawn.Labels[0] == "Food held" {
		t.Errorf("drawn labels = %v, the older response was rendered", drawn.Labels)
	}
}

func TestDrillDownAndBack(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.DrillDown(ctx, core.FamilyExpense, "food"); err != nil {
		t.Fatalf("DrillDown() error = %v", err)
	}
	calls := h.backend.merchantCalls()
	if len(calls) != 1 || calls[0].Get("base_id") != "food" || calls[0].Get("op_type") != "expense" {
		t.Errorf("merchant calls = %v", calls)
	}
	ch, _ := h.surface.LastChart(render.CanvasExpenseShare)
	if !ch.BackVisible || len(ch.Labels) != 2 || ch.Labels[0] != "food Shop" {
		t.Errorf("merchant chart = %+v", ch)
	}
	if st := h.d.Status(); st.Levels[core.FamilyExpense] != state.LevelMerchant {
		t.Errorf("level = %s, want merchant", st.Levels[core.FamilyExpense])
	}
	if !h.pub.has(amqp.EventDrilled) {
		t.Errorf("events = %v, want drilled", h.pub.types())
	}

	if err := h.d.Back(ctx, core.FamilyExpense); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	ch, _ = h.surface.LastChart(render.CanvasExpenseShare)
	if ch.BackVisible || ch.Labels[0] != "Food" {
		t.Errorf("aggregate chart = %+v", ch)
	}
	if h.surface.LiveOn(render.CanvasExpenseShare) != 1 {
		t.Errorf("live handles on share canvas = %d, want 1", h.surface.LiveOn(render.CanvasExpenseShare))
	}

	// Every click on a bucket fetches its merchants again.
	if err := h.d.DrillDown(ctx, core.FamilyExpense, "food"); err != nil {
		t.Fatal(err)
	}
	if err := h.d.Back(ctx, core.FamilyExpense); err != nil {
		t.Fatal(err)
	}
	if err := h.d.DrillDown(ctx, core.FamilyExpense, "food"); err != nil {
		t.Fatal(err)
	}
	if n := len(h.backend.merchantCalls()); n != 3 {
		t.Errorf("merchant calls after three clicks = %d, want 3", n)
	}
	if err := h.d.DrillDown(ctx, core.FamilyExpense, ""); !errors.Is(err, ErrEmptyBucket) {
		t.Errorf("DrillDown(empty) error = %v", err)
	}
	if err := h.d.DrillDown(ctx, core.Family("nope"), "x"); !errors.Is(err, state.ErrUnknownFamily) {
		t.Errorf("DrillDown(unknown family) error = %v", err)
	}
}

func TestDrillDown_HomeTransfersHidesOwnAccounts(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	if err := h.d.DrillDown(context.Background(), core.FamilyHomeTransfers, "tr"); err != nil {
		t.Fatalf("DrillDown() error = %v", err)
	}
	calls := h.backend.merchantCalls()
	if len(calls) != 1 || calls[0].Has("op_type") {
		t.Errorf("merchant calls = %v, want no op_type", calls)
	}
	ch, _ := h.surface.LastChart(render.CanvasHomeTransfers)
	if !ch.BackVisible || len(ch.Labels) != 1 || ch.Labels[0] != "tr Shop" {
		t.Errorf("home transfers chart = %+v", ch)
	}
}

func TestDrillDown_LastClickWins(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.d.DrillDown(ctx, core.FamilyExpense, "slow") }()
	<-h.backend.slowArrived

	if err := h.d.DrillDown(ctx, core.FamilyExpense, "rent"); err != nil {
		t.Fatalf("DrillDown(rent) error = %v", err)
	}
	close(h.backend.slowRelease)
	if err := <-done; err != nil {
		t.Fatalf("DrillDown(slow) error = %v", err)
	}

	ch, _ := h.surface.LastChart(render.CanvasExpenseShare)
	if len(ch.Labels) == 0 || ch.Labels[0] != "rent Shop" {
		t.Errorf("labels = %v, want rent merchants", ch.Labels)
	}
}

func TestBack_DropsInFlightDrill(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.d.DrillDown(ctx, core.FamilyExpense, "slow") }()
	<-h.backend.slowArrived

	if err := h.d.Back(ctx, core.FamilyExpense); err != nil {
		t.Fatal(err)
	}
	close(h.backend.slowRelease)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if st := h.d.Status(); st.Levels[core.FamilyExpense] != state.LevelAggregate {
		t.Errorf("level = %s, want aggregate", st.Levels[core.FamilyExpense])
	}
}

func TestSwitchTab_ResetsCategoryCursor(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.DrillDown(ctx, core.FamilyExpense, "food"); err != nil {
		t.Fatal(err)
	}
	if err := h.d.SwitchTab(ctx, core.TabQuick); err != nil {
		t.Fatal(err)
	}
	if err := h.d.SwitchTab(ctx, core.TabExpense); err != nil {
		t.Fatal(err)
	}
	if st := h.d.Status(); st.Levels[core.FamilyExpense] != state.LevelAggregate {
		t.Errorf("level = %s after tab render, want aggregate", st.Levels[core.FamilyExpense])
	}
}

func TestReload_KeepsDrill(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.DrillDown(ctx, core.FamilyExpense, "food"); err != nil {
		t.Fatal(err)
	}
	if err := h.d.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if st := h.d.Status(); st.Levels[core.FamilyExpense] != state.LevelMerchant {
		t.Errorf("level = %s after Reload, want merchant", st.Levels[core.FamilyExpense])
	}
	ch, _ := h.surface.LastChart(render.CanvasExpenseShare)
	if !ch.BackVisible || len(ch.Labels) == 0 || ch.Labels[0] != "food Shop" {
		t.Errorf("chart after Reload = %+v, want merchant rows", ch)
	}

	if err := h.d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if st := h.d.Status(); st.Levels[core.FamilyExpense] != state.LevelAggregate {
		t.Errorf("level = %s after Refresh, want aggregate", st.Levels[core.FamilyExpense])
	}
}

func TestSettingsRedrawSingleChart(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.SetTopN(ctx, 10); err != nil {
		t.Fatalf("SetTopN() error = %v", err)
	}
	if err := h.d.SetTopN(ctx, 7); !errors.Is(err, state.ErrInvalidTopN) {
		t.Errorf("SetTopN(7) error = %v", err)
	}
	if err := h.d.SetDynamicsMode(ctx, state.DynamicsWeek); err != nil {
		t.Fatalf("SetDynamicsMode() error = %v", err)
	}
	if err := h.d.SetTrendMode(ctx, "hourly"); !errors.Is(err, state.ErrInvalidMode) {
		t.Errorf("SetTrendMode(hourly) error = %v", err)
	}
	st := h.d.Status()
	if st.Settings.TopN != 10 || st.Settings.DynMode != state.DynamicsWeek {
		t.Errorf("settings = %+v", st.Settings)
	}

	h.d.SetCategoryFilter("Food")
	if st := h.d.Status(); st.Settings.CategoryFilter != "Food" || st.Toast != "Фильтр по категории: Food" {
		t.Errorf("status = %+v", st)
	}
	h.d.ResetCategoryFilter(ctx)
	if st := h.d.Status(); st.Settings.CategoryFilter != "" {
		t.Errorf("filter = %q after reset", st.Settings.CategoryFilter)
	}
}

func TestImport(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	before := len(h.backend.analyticsCalls())

	if err := h.d.Import(ctx, "sber", "a.csv", strings.NewReader("x")); !errors.Is(err, core.ErrUnknownBank) {
		t.Errorf("Import(sber) error = %v, want ErrUnknownBank", err)
	}
	if err := h.d.Import(ctx, "alfa", "", nil); !errors.Is(err, core.ErrEmptyFile) {
		t.Errorf("Import(no file) error = %v, want ErrEmptyFile", err)
	}
	if err := h.d.Import(ctx, "Alfa", "march.csv", strings.NewReader("date;amount\n")); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(h.backend.imports) != 1 || h.backend.imports[0] != "alfa" {
		t.Errorf("imports = %v", h.backend.imports)
	}
	if st := h.d.Status(); st.Toast != "Импорт завершён" {
		t.Errorf("toast = %q", st.Toast)
	}
	if n := len(h.backend.analyticsCalls()); n != before+2 {
		t.Errorf("analytics calls = %d, want a refresh after import", n)
	}
	if !h.pub.has(amqp.EventImported) {
		t.Errorf("events = %v, want imported", h.pub.types())
	}
}

func TestDataChangingActions(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.ImportDemo(ctx); err != nil {
		t.Fatalf("ImportDemo() error = %v", err)
	}
	if err := h.d.DeleteFile(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if err := h.d.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if h.backend.demos != 1 || h.backend.resets != 1 || len(h.backend.deleted) != 1 {
		t.Errorf("backend saw demos=%d resets=%d deleted=%v", h.backend.demos, h.backend.resets, h.backend.deleted)
	}
	if st := h.d.Status(); st.Toast != "Данные удалены" {
		t.Errorf("toast = %q", st.Toast)
	}
	for _, ev := range []string{amqp.EventFileDeleted, amqp.EventReset} {
		if !h.pub.has(ev) {
			t.Errorf("events = %v, want %s", h.pub.types(), ev)
		}
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	q := core.OperationsQuery{Period: core.Period{Start: "2024-03-01", End: "2024-03-31"}, Type: "expense", ExcludeTransfers: true}
	if err := h.d.SetHistoryQuery(ctx, q); err != nil {
		t.Fatalf("SetHistoryQuery() error = %v", err)
	}
	last := h.backend.ops[len(h.backend.ops)-1]
	if last.Get("type") != "expense" || last.Get("exclude_transfers") != "true" || last.Get("limit") != "500" {
		t.Errorf("operations query = %v", last)
	}
	tbl, ok := h.surface.LastTable(render.TableHistory)
	if !ok || len(tbl.Rows) != 1 {
		t.Errorf("history table = %+v", tbl)
	}

	if err := h.d.SetHistoryQuery(ctx, core.OperationsQuery{Type: "transfers"}); !errors.Is(err, core.ErrInvalidOpsType) {
		t.Errorf("SetHistoryQuery(transfers) error = %v", err)
	}
	if err := h.d.ApplyHistoryRange(ctx, core.RangeYear); err != nil {
		t.Fatal(err)
	}
	if st := h.d.Status(); st.HistoryQuery.Period.Start != "2023-03-31" || st.HistoryQuery.Type != "expense" {
		t.Errorf("history query = %+v", st.HistoryQuery)
	}
}

func TestRecentOperationsWindow(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	var recent url.Values
	for _, q := range h.backend.ops {
		if q.Get("limit") == "15" {
			recent = q
		}
	}
	if recent == nil || recent.Get("start_date") != "2024-03-24" || recent.Get("end_date") != "2024-03-31" {
		t.Errorf("recent operations query = %v", recent)
	}
}

func TestAsk(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	if err := h.d.Ask(ctx, "   "); !errors.Is(err, core.ErrEmptyQuestion) {
		t.Errorf("Ask(blank) error = %v", err)
	}
	if err := h.d.Ask(ctx, "Сколько я потратил?"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	h.backend.mu.Lock()
	h.backend.answer = "Много"
	h.backend.mu.Unlock()
	if err := h.d.Ask(ctx, "А точнее?"); err != nil {
		t.Fatal(err)
	}

	msgs := h.d.Status().Messages
	want := []state.Message{
		{Role: state.RoleUser, Text: "Сколько я потратил?"},
		{Role: state.RoleAgent, Text: msgNoAnswer},
		{Role: state.RoleUser, Text: "А точнее?"},
		{Role: state.RoleAgent, Text: "Много"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %v", msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestGoalsAndProfilePersist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	long := strings.Repeat("ц", state.MaxGoalsLength+10)
	if err := h.d.SetGoals(ctx, long); err != nil {
		t.Fatalf("SetGoals() error = %v", err)
	}
	stored, _, _ := h.prefs.Get(ctx, storage.KeyGoals)
	if got := len([]rune(stored)); got != state.MaxGoalsLength {
		t.Errorf("stored goals length = %d, want %d", got, state.MaxGoalsLength)
	}
	if txt, ok := h.surface.LastText(render.TextGoals); !ok || txt.Muted {
		t.Errorf("goals text = %+v", txt)
	}

	p := core.Profile{Name: "Аня", Currency: "RUB"}
	if err := h.d.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	raw, _, _ := h.prefs.Get(ctx, storage.KeyProfile)
	if !strings.Contains(raw, `"name":"Аня"`) {
		t.Errorf("stored profile = %s", raw)
	}

	// A fresh session restores both from the preferences.
	_ = h.d.SetGoals(ctx, "Накопить")
	h.login(t)
	st := h.d.Status()
	if st.Goals != "Накопить" || st.Profile != p {
		t.Errorf("restored goals=%q profile=%+v", st.Goals, st.Profile)
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.d.ExportTab(ctx, core.TabExpense); !errors.Is(err, render.ErrNoSnapshot) {
		t.Errorf("ExportTab() before refresh error = %v", err)
	}
	h.login(t)

	ref, err := h.d.ExportHistory(ctx)
	if err != nil {
		t.Fatalf("ExportHistory() error = %v", err)
	}
	if ref != "mem:history:1" {
		t.Errorf("ref = %q", ref)
	}
	grid, _ := h.export.ReadTable(ctx, "history")
	if len(grid) != 2 || grid[0][0] != "Дата" {
		t.Errorf("history sheet = %v", grid)
	}

	if _, err := h.d.ExportTab(ctx, core.TabExpense); err != nil {
		t.Fatalf("ExportTab() error = %v", err)
	}
	grid, _ = h.export.ReadTable(ctx, "expense")
	if len(grid) != 3 || grid[1][0] != "food" || grid[1][2] != "-400.00" {
		t.Errorf("expense sheet = %v", grid)
	}
}

func TestExport_NoTarget(t *testing.T) {
	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	defer srv.Close()
	d := New(api.NewClient(srv.URL, time.Second), render.NewDispatcher(memory.New(), nil))
	if _, err := d.ExportHistory(context.Background()); !errors.Is(err, ErrNoExporter) {
		t.Errorf("ExportHistory() error = %v, want ErrNoExporter", err)
	}
}

func TestFrame_CombinesTabOverviewAndLists(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	f, err := h.d.Frame(core.TabQuick)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if f.Tab != core.TabQuick {
		t.Errorf("tab = %s", f.Tab)
	}
	if _, ok := f.Chart(render.CanvasTrend); ok {
		t.Error("quick tab has no snapshot yet but its trend chart is present")
	}
	for _, c := range []render.Canvas{render.TextSummary, render.TextGoals} {
		if _, ok := f.Text(c); !ok {
			t.Errorf("text %s missing", c)
		}
	}
	if _, ok := f.Table(render.TableFiles); !ok {
		t.Error("files table missing")
	}
	if _, err := h.d.Frame("nope"); err == nil {
		t.Error("Frame(nope) = nil error")
	}
}
