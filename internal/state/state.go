// Package state is the dashboard's application state: the active tab, each
// tab's period and cached snapshot, the drill-down cursors and the client
// side lists. It is a plain serializable value; the dashboard serializes
// access to it and the renderers read it without side effects.
package state

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"finboard/internal/cache"
	"finboard/internal/core"
)

const (
	DynamicsMonth = "month"
	DynamicsWeek  = "week"

	TrendMonthly = "monthly"
	TrendWeekly  = "weekly"
	TrendDaily   = "daily"

	AuthLogin  = "login"
	AuthCreate = "create"

	RoleUser  = "user"
	RoleAgent = "agent"
)

// MaxGoalsLength caps the goals text in runes.
const MaxGoalsLength = 5000

var (
	ErrUnknownTab    = errors.New("unknown tab")
	ErrUnknownFamily = errors.New("unknown drill-down family")
	ErrInvalidTopN   = errors.New("top N must be 5 or 10")
	ErrInvalidMode   = errors.New("invalid display mode")
)

// TopNChoices are the allowed sizes of the top categories chart.
var TopNChoices = []int{5, 10}

type TabScope struct {
	Period core.Period                `json:"period"`
	Data   cache.Slot[*core.Snapshot] `json:"data"`
}

type Settings struct {
	TopN      int    `json:"top_n"`
	DynMode   string `json:"dyn_mode"`
	TrendMode string `json:"trend_mode"`
	// CategoryFilter is the category picked on the top categories chart.
	CategoryFilter string `json:"category_filter,omitempty"`
}

type Auth struct {
	ScreenVisible bool   `json:"screen_visible"`
	PasswordSet   bool   `json:"password_set"`
	Mode          string `json:"mode"`
	Initialized   bool   `json:"initialized"`
}

type History struct {
	Query core.OperationsQuery `json:"query"`
	Items []core.Operation     `json:"items"`
}

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type App struct {
	Active    core.Tab                   `json:"active"`
	Tabs      map[core.Tab]*TabScope     `json:"tabs"`
	Home      cache.Slot[*core.Snapshot] `json:"home"`
	Inputs    core.Period                `json:"inputs"`
	Cursors   map[core.Family]*Cursor    `json:"cursors"`
	Settings  Settings                   `json:"settings"`
	Auth      Auth                       `json:"auth"`
	Files     []core.File                `json:"files"`
	History   History                    `json:"history"`
	RecentOps []core.Operation           `json:"recent_ops"`
	Goals     string                     `json:"goals"`
	Profile   core.Profile               `json:"profile"`
	Messages  []Message                  `json:"messages"`
	Toast     string                     `json:"toast,omitempty"`
}

// New returns the start-of-process state: expense tab active, every period
// empty, every cursor at the aggregate level, auth screen shown.
func New() *App {
	a := &App{
		Active:  core.TabExpense,
		Tabs:    make(map[core.Tab]*TabScope, len(core.Tabs)),
		Cursors: make(map[core.Family]*Cursor, len(core.Families)),
		Settings: Settings{
			TopN:      5,
			DynMode:   DynamicsMonth,
			TrendMode: TrendMonthly,
		},
		Auth: Auth{ScreenVisible: true, Mode: AuthLogin},
		History: History{
			Query: core.OperationsQuery{Type: "all", Limit: 500},
		},
	}
	for _, t := range core.Tabs {
		a.Tabs[t] = &TabScope{}
	}
	for _, f := range core.Families {
		a.Cursors[f] = NewCursor()
	}
	return a
}

func (a *App) Scope(t core.Tab) (*TabScope, error) {
	s, ok := a.Tabs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTab, t)
	}
	return s, nil
}

func (a *App) ActiveScope() *TabScope {
	return a.Tabs[a.Active]
}

func (a *App) Cursor(f core.Family) (*Cursor, error) {
	c, ok := a.Cursors[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, f)
	}
	return c, nil
}

// Snapshot returns the cached snapshot for t, if any.
func (a *App) Snapshot(t core.Tab) (*core.Snapshot, bool) {
	s, ok := a.Tabs[t]
	if !ok {
		return nil, false
	}
	return s.Data.Get()
}

func (a *App) HomeSnapshot() (*core.Snapshot, bool) {
	return a.Home.Get()
}

// SetActive makes t the active tab and syncs the date inputs from its period.
func (a *App) SetActive(t core.Tab) error {
	if _, err := a.Scope(t); err != nil {
		return err
	}
	a.Active = t
	a.SyncInputs()
	return nil
}

// SyncInputs copies the active tab's period into the date inputs.
func (a *App) SyncInputs() {
	a.Inputs = a.ActiveScope().Period
}

// Query builds the analytics query for tab t. The period is sent only when
// both bounds are set. Only the transfers tab includes transfer rows.
func (a *App) Query(t core.Tab) core.AnalyticsQuery {
	q := core.AnalyticsQuery{ExcludeTransfers: t != core.TabTransfers}
	if s, ok := a.Tabs[t]; ok && s.Period.Complete() {
		q.Period = s.Period
	}
	return q
}

// HomeQuery is the all-time, transfers-excluded scope feeding the overview.
func HomeQuery() core.AnalyticsQuery {
	return core.AnalyticsQuery{ExcludeTransfers: true}
}

func (s *Settings) SetTopN(n int) error {
	for _, c := range TopNChoices {
		if n == c {
			s.TopN = n
			return nil
		}
	}
	return ErrInvalidTopN
}

func (s *Settings) SetDynMode(mode string) error {
	switch mode {
	case DynamicsMonth, DynamicsWeek:
		s.DynMode = mode
		return nil
	}
	return fmt.Errorf("%w: dynamics %q", ErrInvalidMode, mode)
}

func (s *Settings) SetTrendMode(mode string) error {
	switch mode {
	case TrendMonthly, TrendWeekly, TrendDaily:
		s.TrendMode = mode
		return nil
	}
	return fmt.Errorf("%w: trend %q", ErrInvalidMode, mode)
}

// SetGoals stores the goals text truncated to MaxGoalsLength runes and
// returns the stored value.
func (a *App) SetGoals(text string) string {
	if utf8.RuneCountInString(text) > MaxGoalsLength {
		text = string([]rune(text)[:MaxGoalsLength])
	}
	a.Goals = text
	return text
}

// GoalsSet reports whether any non-blank goal text is stored.
func (a *App) GoalsSet() bool {
	return strings.TrimSpace(a.Goals) != ""
}

// ResetSession returns to the auth screen after the credential was rejected.
func (a *App) ResetSession() {
	a.Auth.ScreenVisible = true
	a.Auth.Mode = AuthLogin
	a.Auth.Initialized = false
}

// Check verifies the invariants of every cursor.
func (a *App) Check() error {
	for f, c := range a.Cursors {
		if err := c.Check(); err != nil {
			return fmt.Errorf("cursor %s: %w", f, err)
		}
	}
	if _, ok := a.Tabs[a.Active]; !ok {
		return fmt.Errorf("%w: active %q", ErrUnknownTab, a.Active)
	}
	return nil
}
