// Package render derives drawable frames from the application state and
// pushes them to a rendering surface.
//
// Building a frame is a pure function of state.App. Drawing goes through a
// Dispatcher, which owns at most one live chart handle per canvas and
// releases it before every redraw.
package render

import (
	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Canvas names one drawing target. Tables and text blocks use the same
// namespace.
type Canvas string

const (
	CanvasExpenseShare      Canvas = "expense_share"
	CanvasExpenseTop        Canvas = "expense_top"
	CanvasExpenseDynamics   Canvas = "expense_dynamics"
	CanvasExpenseCumulative Canvas = "expense_cumulative"

	CanvasIncomeShare    Canvas = "income_share"
	CanvasIncomeSources  Canvas = "income_sources"
	CanvasIncomeTimeline Canvas = "income_timeline"
	CanvasIncomeNet      Canvas = "income_net"

	CanvasTransfers     Canvas = "transfers"
	TableTransferList   Canvas = "transfer_list"
	CanvasHomeTransfers Canvas = "home_transfers"

	CanvasTrend              Canvas = "quick_trend"
	CanvasBalanceSpark       Canvas = "quick_balance_spark"
	CanvasTopExpenseCats     Canvas = "quick_top_expense_cats"
	TextQuickEmpty           Canvas = "quick_answers"
	TextQuickTopExpenses     Canvas = "quick_top_expenses"
	TextQuickTopIncomes      Canvas = "quick_top_incomes"
	TextQuickBalance         Canvas = "quick_balance"
	TextQuickExpenseCategory Canvas = "quick_top_expense_category"
	TextQuickIncomeCategory  Canvas = "quick_top_income_category"
	TextQuickDelta           Canvas = "quick_delta"
	TextQuickBestWorst       Canvas = "quick_best_worst"

	TextSummary         Canvas = "summary"
	TextGoals           Canvas = "home_goals"
	TableRecentOps      Canvas = "home_recent_ops"
	TextHomeTopExpenses Canvas = "home_top_expenses"
	TextHomeTopIncomes  Canvas = "home_top_incomes"
	TableHistory        Canvas = "history"
	TableFiles          Canvas = "files"
)

type Kind string

const (
	KindDoughnut Kind = "doughnut"
	KindBar      Kind = "bar"
	KindLine     Kind = "line"
)

// Palette is the series color cycle.
var Palette = []string{"#A55DE8", "#5BB4FF", "#FFB86B", "#FF8FA3", "#7C4DFF", "#4EC2FF", "#6FCF97", "#F2C94C"}

const (
	colorIncome  = "#5BB4FF"
	colorExpense = "#FF9B9B"
)

// Color returns the palette color for series index i.
func Color(i int) string {
	return Palette[i%len(Palette)]
}

type Dataset struct {
	Label  string            `json:"label,omitempty"`
	Values []decimal.Decimal `json:"values"`
	Colors []string          `json:"colors"`
}

// LegendItem is one legend entry. Entries with an ID can be drilled into.
type LegendItem struct {
	Label string `json:"label"`
	Color string `json:"color"`
	ID    string `json:"id,omitempty"`
}

type Legend struct {
	Title string       `json:"title,omitempty"`
	Items []LegendItem `json:"items,omitempty"`
	// Empty is shown instead of the items when there is nothing to draw.
	Empty string `json:"empty,omitempty"`
}

type Chart struct {
	Canvas      Canvas    `json:"canvas"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Labels      []string  `json:"labels"`
	Datasets    []Dataset `json:"datasets"`
	Tooltips    []string  `json:"tooltips,omitempty"`
	Legend      Legend    `json:"legend"`
	BackVisible bool      `json:"back_visible"`
	Empty       bool      `json:"empty"`
}

type Table struct {
	Name    Canvas     `json:"name"`
	Title   string     `json:"title,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Empty   string     `json:"empty,omitempty"`
}

type Text struct {
	Name  Canvas   `json:"name"`
	Title string   `json:"title,omitempty"`
	Lines []string `json:"lines"`
	Muted bool     `json:"muted,omitempty"`
}

// Frame is everything drawn for one tab or for the home overview.
type Frame struct {
	Tab    core.Tab `json:"tab,omitempty"`
	Charts []Chart  `json:"charts"`
	Tables []Table  `json:"tables"`
	Texts  []Text   `json:"texts"`
}

func (f Frame) Chart(c Canvas) (Chart, bool) {
	for _, ch := range f.Charts {
		if ch.Canvas == c {
			return ch, true
		}
	}
	return Chart{}, false
}

func (f Frame) Table(name Canvas) (Table, bool) {
	for _, t := range f.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

func (f Frame) Text(name Canvas) (Text, bool) {
	for _, t := range f.Texts {
		if t.Name == name {
			return t, true
		}
	}
	return Text{}, false
}

// Empty reports whether the frame draws nothing.
func (f Frame) Empty() bool {
	return len(f.Charts) == 0 && len(f.Tables) == 0 && len(f.Texts) == 0
}

// Canvases lists every canvas the frame draws on, charts first.
func (f Frame) Canvases() []Canvas {
	out := make([]Canvas, 0, len(f.Charts)+len(f.Tables)+len(f.Texts))
	for _, ch := range f.Charts {
		out = append(out, ch.Canvas)
	}
	for _, t := range f.Tables {
		out = append(out, t.Name)
	}
	for _, t := range f.Texts {
		out = append(out, t.Name)
	}
	return out
}

// Merge appends other's elements to f.
func (f Frame) Merge(other Frame) Frame {
	f.Charts = append(f.Charts, other.Charts...)
	f.Tables = append(f.Tables, other.Tables...)
	f.Texts = append(f.Texts, other.Texts...)
	return f
}
