// Package tui is the interactive terminal front end of the dashboard. Key
// presses become dashboard operations run as bubbletea commands; the view
// is painted from the terminal surface the dispatcher draws on.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/dashboard"
	"finboard/internal/render"
	"finboard/internal/state"
)

// Dashboard is the set of operations the TUI drives.
type Dashboard interface {
	Status() dashboard.Status
	Frame(tab core.Tab) (render.Frame, error)
	Login(ctx context.Context, password string) error
	SetPassword(ctx context.Context, password string) error
	Refresh(ctx context.Context) error
	SwitchTab(ctx context.Context, tab core.Tab) error
	DrillDown(ctx context.Context, family core.Family, bucketID string) error
	Back(ctx context.Context, family core.Family) error
	SetTopN(ctx context.Context, n int) error
	SetDynamicsMode(ctx context.Context, mode string) error
	SetTrendMode(ctx context.Context, mode string) error
	ApplyQuickRange(ctx context.Context, tab core.Tab, r core.QuickRange) error
	SetPeriodStart(ctx context.Context, start string) error
	SetPeriodEnd(ctx context.Context, end string) error
	SetCategoryFilter(name string)
	ResetCategoryFilter(ctx context.Context)
	SetHistoryQuery(ctx context.Context, q core.OperationsQuery) error
	ApplyHistoryRange(ctx context.Context, r core.QuickRange) error
	Import(ctx context.Context, bank, filename string, r io.Reader) error
	ImportDemo(ctx context.Context) error
	DeleteFile(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Ask(ctx context.Context, question string) error
	SetGoals(ctx context.Context, text string) error
	SaveProfile(ctx context.Context, p core.Profile) error
	ExportTab(ctx context.Context, tab core.Tab) (string, error)
	ExportHistory(ctx context.Context) (string, error)
	ClearToast()
}

var _ Dashboard = (*dashboard.Dashboard)(nil)

// Screen returns the painted blocks of the given canvases.
type Screen interface {
	View(canvases ...render.Canvas) string
	Resize(width int)
}

type opDoneMsg struct {
	op  string
	err error
}

type tickMsg time.Time

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#a6adc8"))
	activeTabStyle = tabStyle.Bold(true).Foreground(lipgloss.Color("#1e1e2e")).Background(lipgloss.Color("#89b4fa"))
	periodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	selectStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fab387"))
	toastStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#585b70"))
	loginBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 3)
)

var tabTitles = map[core.Tab]string{
	core.TabExpense:   "Расходы",
	core.TabIncome:    "Доходы",
	core.TabTransfers: "Переводы",
	core.TabQuick:     "Быстрые ответы",
}

var tabCanvases = map[core.Tab][]render.Canvas{
	core.TabExpense:   {render.CanvasExpenseShare, render.CanvasExpenseTop, render.CanvasExpenseDynamics, render.CanvasExpenseCumulative},
	core.TabIncome:    {render.CanvasIncomeShare, render.CanvasIncomeSources, render.CanvasIncomeTimeline, render.CanvasIncomeNet},
	core.TabTransfers: {render.CanvasTransfers, render.TableTransferList},
	core.TabQuick: {
		render.CanvasTrend, render.CanvasBalanceSpark, render.CanvasTopExpenseCats,
		render.TextQuickEmpty, render.TextQuickTopExpenses, render.TextQuickTopIncomes,
		render.TextQuickBalance, render.TextQuickExpenseCategory, render.TextQuickIncomeCategory,
		render.TextQuickDelta, render.TextQuickBestWorst,
	},
}

var homeCanvases = []render.Canvas{
	render.TextSummary, render.CanvasHomeTransfers, render.TextGoals,
	render.TableRecentOps, render.TextHomeTopExpenses, render.TextHomeTopIncomes,
}

var drillCanvas = map[core.Family]render.Canvas{
	core.FamilyExpense:       render.CanvasExpenseShare,
	core.FamilyIncome:        render.CanvasIncomeShare,
	core.FamilyTransfers:     render.CanvasTransfers,
	core.FamilyHomeTransfers: render.CanvasHomeTransfers,
}

const helpText = "1-7 вкладки · ↑↓ выбор · enter детали · esc назад · h переводы · f топ · t топ N · d динамика · c тренд · w/m/y [ ] период · r обновить · e/E экспорт · i импорт · a агент · q выход"

var quickRanges = map[string]core.QuickRange{"w": core.RangeWeek, "m": core.RangeMonth, "y": core.RangeYear}

// focus selects which chart the selection keys of the analytics page act on.
type focus int

const (
	focusTab focus = iota
	focusHome
	focusTop
)

type Model struct {
	ctx    context.Context
	dash   Dashboard
	screen Screen
	status *StatusLine
	tick   time.Duration

	width, height int
	offset        int
	page          page
	focus         focus
	selected      int
	password      []rune
	busy          string
	form          *form
	confirm       *confirmation
}

func New(ctx context.Context, dash Dashboard, screen Screen, status *StatusLine) *Model {
	if status == nil {
		status = NewStatusLine(10 * time.Second)
	}
	return &Model{ctx: ctx, dash: dash, screen: screen, status: status, tick: time.Second}
}

func (m *Model) Init() tea.Cmd {
	return m.tickCmd()
}

// tickCmd repaints periodically so results of scheduled refreshes show up.
func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.screen.Resize(msg.Width)
		return m, nil
	case tickMsg:
		return m, m.tickCmd()
	case opDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.status.set(describeOp(msg.op, msg.err))
		}
		m.clampSelection()
		return m, nil
	case tea.KeyMsg:
		switch {
		case m.dash.Status().Auth.ScreenVisible:
			return m, m.handleLoginKey(msg)
		case m.form != nil:
			return m, m.handleFormKey(msg)
		case m.confirm != nil:
			return m, m.handleConfirmKey(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func describeOp(op string, err error) string {
	switch {
	case errors.Is(err, api.ErrInvalidPassword):
		return "Неверный пароль"
	case errors.Is(err, api.ErrPasswordRejected):
		return "Пароль не принят"
	case errors.Is(err, dashboard.ErrNoExporter):
		return "Экспорт не настроен"
	case errors.Is(err, core.ErrUnknownBank):
		return "Неизвестный банк, доступны: " + strings.Join(core.Banks, ", ")
	case errors.Is(err, core.ErrEmptyFile):
		return "Выберите CSV-файл"
	case errors.Is(err, core.ErrEmptyQuestion):
		return "Вопрос пустой"
	case errors.Is(err, core.ErrInvalidPeriod):
		return "Неверный период, формат ГГГГ-ММ-ДД"
	case errors.Is(err, core.ErrInvalidOpsType):
		return "Тип операций: все, доходы или расходы"
	}
	return describe(op, err)
}

// run executes fn off the UI goroutine and reports its outcome.
func (m *Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = op
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) handleLoginKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit
	case tea.KeyBackspace:
		if n := len(m.password); n > 0 {
			m.password = m.password[:n-1]
		}
		return nil
	case tea.KeyEnter:
		pw := string(m.password)
		m.password = nil
		if m.dash.Status().Auth.Mode == state.AuthCreate {
			return m.run("пароль", func(ctx context.Context) error { return m.dash.SetPassword(ctx, pw) })
		}
		return m.run("вход", func(ctx context.Context) error { return m.dash.Login(ctx, pw) })
	case tea.KeyRunes, tea.KeySpace:
		if !msg.Alt {
			m.password = append(m.password, msg.Runes...)
		}
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if cmd, ok := m.handleCommonKey(key); ok {
		return cmd
	}
	st := m.dash.Status()
	switch m.page {
	case pageHistory:
		return m.handleHistoryKey(key, st)
	case pageProfile:
		return m.handleProfileKey(key, st)
	case pageChat:
		return nil
	}
	return m.handleAnalyticsKey(key, st)
}

func (m *Model) handleAnalyticsKey(key string, st dashboard.Status) tea.Cmd {
	active := st.Active
	switch key {
	case "tab":
		return m.switchTab(core.Tabs[(tabIndex(active)+1)%len(core.Tabs)])
	case "shift+tab":
		return m.switchTab(core.Tabs[(tabIndex(active)+len(core.Tabs)-1)%len(core.Tabs)])
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		m.selected++
		m.clampSelection()
	case "h":
		m.toggleFocus(focusHome)
	case "f":
		if active == core.TabExpense {
			m.toggleFocus(focusTop)
		}
	case "enter":
		items := m.selectable(st)
		if len(items) == 0 {
			return nil
		}
		it := items[min(m.selected, len(items)-1)]
		if m.focus == focusTop {
			m.dash.SetCategoryFilter(it.Label)
			return nil
		}
		family := m.focusFamily(active)
		return m.run("детализация", func(ctx context.Context) error { return m.dash.DrillDown(ctx, family, it.ID) })
	case "esc", "backspace":
		if m.focus == focusTop {
			m.toggleFocus(focusTop)
			return nil
		}
		family := m.focusFamily(active)
		return m.run("назад", func(ctx context.Context) error { return m.dash.Back(ctx, family) })
	case "F":
		return m.run("сброс фильтра", func(ctx context.Context) error {
			m.dash.ResetCategoryFilter(ctx)
			return nil
		})
	case "t":
		n := 10
		if st.Settings.TopN == 10 {
			n = 5
		}
		return m.run("топ категорий", func(ctx context.Context) error { return m.dash.SetTopN(ctx, n) })
	case "d":
		mode := state.DynamicsWeek
		if st.Settings.DynMode == state.DynamicsWeek {
			mode = state.DynamicsMonth
		}
		return m.run("динамика", func(ctx context.Context) error { return m.dash.SetDynamicsMode(ctx, mode) })
	case "c":
		mode := nextTrend(st.Settings.TrendMode)
		return m.run("тренд", func(ctx context.Context) error { return m.dash.SetTrendMode(ctx, mode) })
	case "w", "m", "y":
		r := quickRanges[key]
		return m.run("период", func(ctx context.Context) error { return m.dash.ApplyQuickRange(ctx, active, r) })
	case "[":
		m.form = newForm("Начало периода", func(v []string) tea.Cmd {
			start := strings.TrimSpace(v[0])
			return m.run("период", func(ctx context.Context) error { return m.dash.SetPeriodStart(ctx, start) })
		}, "С (ГГГГ-ММ-ДД)").prefill(st.Inputs.Start)
	case "]":
		m.form = newForm("Конец периода", func(v []string) tea.Cmd {
			end := strings.TrimSpace(v[0])
			return m.run("период", func(ctx context.Context) error { return m.dash.SetPeriodEnd(ctx, end) })
		}, "По (ГГГГ-ММ-ДД)").prefill(st.Inputs.End)
	case "e":
		return m.run("экспорт", func(ctx context.Context) error {
			_, err := m.dash.ExportTab(ctx, active)
			return err
		})
	}
	return nil
}

// toggleFocus switches the selection to f, or back to the tab chart when f
// is already focused.
func (m *Model) toggleFocus(f focus) {
	if m.focus == f {
		m.focus = focusTab
	} else {
		m.focus = f
	}
	m.selected = 0
}

func (m *Model) switchTab(tab core.Tab) tea.Cmd {
	m.selected = 0
	m.offset = 0
	m.focus = focusTab
	return m.run("вкладка", func(ctx context.Context) error { return m.dash.SwitchTab(ctx, tab) })
}

func tabIndex(tab core.Tab) int {
	for i, t := range core.Tabs {
		if t == tab {
			return i
		}
	}
	return 0
}

func nextTrend(mode string) string {
	switch mode {
	case state.TrendMonthly:
		return state.TrendWeekly
	case state.TrendWeekly:
		return state.TrendDaily
	default:
		return state.TrendMonthly
	}
}

// focusFamily is the drill-down chart the selection keys act on. The quick
// tab has none of its own, so it always targets the overview transfers.
func (m *Model) focusFamily(active core.Tab) core.Family {
	if m.focus == focusHome || active == core.TabQuick {
		return core.FamilyHomeTransfers
	}
	return core.Family(active)
}

// drillItems lists the legend entries of family that can be drilled into.
// At merchant level the legend has none.
func (m *Model) drillItems(active core.Tab, family core.Family) []render.LegendItem {
	return m.legendItems(active, drillCanvas[family])
}

func (m *Model) legendItems(active core.Tab, canvas render.Canvas) []render.LegendItem {
	f, err := m.dash.Frame(active)
	if err != nil {
		return nil
	}
	ch, ok := f.Chart(canvas)
	if !ok {
		return nil
	}
	var items []render.LegendItem
	for _, it := range ch.Legend.Items {
		if it.ID != "" {
			items = append(items, it)
		}
	}
	return items
}

// selectable lists what the selection keys move over on the current page.
func (m *Model) selectable(st dashboard.Status) []render.LegendItem {
	switch m.page {
	case pageHistory:
		items := make([]render.LegendItem, len(st.Files))
		for i, f := range st.Files {
			items[i] = render.LegendItem{Label: f.Name, ID: f.ID}
		}
		return items
	case pageAnalytics:
		if m.focus == focusTop && st.Active == core.TabExpense {
			return m.legendItems(st.Active, render.CanvasExpenseTop)
		}
		return m.drillItems(st.Active, m.focusFamily(st.Active))
	}
	return nil
}

func (m *Model) clampSelection() {
	n := len(m.selectable(m.dash.Status()))
	if m.selected >= n {
		m.selected = max(0, n-1)
	}
}

func (m *Model) pageSize() int {
	return max(1, m.height-4)
}

func (m *Model) View() string {
	st := m.dash.Status()
	if st.Auth.ScreenVisible {
		return m.loginView(st)
	}

	var body string
	switch {
	case m.form != nil:
		body = m.form.view()
	case m.page == pageHistory:
		body = m.historyBody(st)
	case m.page == pageChat:
		body = chatBody(st)
	case m.page == pageProfile:
		body = m.profileBody(st)
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.screen.View(tabCanvases[st.Active]...),
			m.selectionLine(st),
			m.screen.View(homeCanvases...),
		)
	}
	lines := strings.Split(body, "\n")
	if m.height > 0 {
		visible := m.pageSize()
		if m.offset > len(lines)-visible {
			m.offset = max(0, len(lines)-visible)
		}
		end := min(len(lines), m.offset+visible)
		lines = lines[m.offset:end]
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.tabsLine(st.Active),
		periodStyle.Render(m.periodLine(st)),
		strings.Join(lines, "\n"),
		m.footer(st),
	)
}

func (m *Model) periodLine(st dashboard.Status) string {
	line := periodLabel(st.Inputs)
	if f := st.Settings.CategoryFilter; f != "" {
		line += " · Категория: " + f
	}
	return line
}

func (m *Model) tabsLine(active core.Tab) string {
	parts := make([]string, 0, len(core.Tabs)+len(pageTitles))
	for i, t := range core.Tabs {
		label := fmt.Sprintf("%d %s", i+1, tabTitles[t])
		if m.page == pageAnalytics && t == active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	for _, p := range pageTitles {
		label := p.key + " " + p.title
		if m.page == p.page {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func periodLabel(p core.Period) string {
	switch {
	case p.Start == "" && p.End == "":
		return "Период: всё время"
	case p.Start == "":
		return "Период: по " + p.End
	case p.End == "":
		return "Период: с " + p.Start
	}
	return "Период: с " + p.Start + " по " + p.End
}

func (m *Model) selectionLine(st dashboard.Status) string {
	items := m.selectable(st)
	if len(items) == 0 {
		return ""
	}
	i := min(m.selected, len(items)-1)
	line := fmt.Sprintf("▸ %s (%d/%d)", items[i].Label, i+1, len(items))
	if m.focus == focusTop {
		line += " · enter фильтр"
	}
	return selectStyle.Render(line)
}

func (m *Model) footer(st dashboard.Status) string {
	var lines []string
	if m.busy != "" {
		lines = append(lines, periodStyle.Render(m.busy+"…"))
	}
	if st.Toast != "" {
		lines = append(lines, toastStyle.Render(st.Toast))
	}
	if msg := m.status.Text(); msg != "" {
		lines = append(lines, errorStyle.Render(msg))
	}
	if m.confirm != nil {
		lines = append(lines, confirmStyle.Render(m.confirm.question+" (y/n)"))
	}
	lines = append(lines, helpStyle.Render(pageHelp(m.page)))
	return strings.Join(lines, "\n")
}

func (m *Model) loginView(st dashboard.Status) string {
	prompt := "Введите пароль"
	if st.Auth.Mode == state.AuthCreate {
		prompt = "Придумайте пароль"
	}
	lines := []string{
		selectStyle.Render("finboard"),
		"",
		prompt,
		strings.Repeat("•", len(m.password)) + "▏",
	}
	if msg := m.status.Text(); msg != "" {
		lines = append(lines, "", errorStyle.Render(msg))
	}
	box := loginBoxStyle.Render(strings.Join(lines, "\n"))
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
