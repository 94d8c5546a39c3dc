package render

import (
	"errors"
	"fmt"

	"finboard/internal/core"
	"finboard/internal/state"
)

// ErrNoSnapshot is returned when a tab has nothing cached to draw.
var ErrNoSnapshot = errors.New("no cached snapshot")

const (
	homeTopItems = 3
	quickTopCats = 3
)

// BuildTab derives the frame for one analytics tab from its cached
// snapshot. It does not touch the state.
func BuildTab(app *state.App, tab core.Tab) (Frame, error) {
	if !tab.Valid() {
		return Frame{}, fmt.Errorf("%w: %q", state.ErrUnknownTab, tab)
	}
	snap, ok := app.Snapshot(tab)
	if !ok || snap == nil {
		return Frame{}, fmt.Errorf("%s: %w", tab, ErrNoSnapshot)
	}

	f := Frame{Tab: tab}
	switch tab {
	case core.TabExpense:
		buckets := snap.ExpenseBuckets()
		f.Charts = []Chart{
			CategoryChart(core.FamilyExpense, buckets, app.Cursors[core.FamilyExpense]),
			TopCategoriesChart(CanvasExpenseTop, buckets, app.Settings.TopN),
			DynamicsChart(snap, app.Settings.DynMode),
			CumulativeChart(snap),
		}
	case core.TabIncome:
		f.Charts = []Chart{
			CategoryChart(core.FamilyIncome, snap.ByBaseIncome, app.Cursors[core.FamilyIncome]),
			IncomeSourcesChart(snap.ByBaseIncome),
			IncomeTimelineChart(snap.Trend),
			IncomeNetChart(snap.Trend),
		}
	case core.TabTransfers:
		f.Charts = []Chart{TransferChart(core.FamilyTransfers, snap.Transfers, app.Cursors[core.FamilyTransfers])}
		f.Tables = []Table{TransferList(snap.Transfers)}
	case core.TabQuick:
		f.Charts = []Chart{
			TrendChart(snap, app.Settings.TrendMode),
			BalanceSpark(snap.Trend),
			TopCategoriesChart(CanvasTopExpenseCats, snap.ByBaseExpense, quickTopCats),
		}
		f.Texts = append(QuickCards(snap.QuickAnswers), BestWorst(snap.Trend))
	}
	return f, nil
}

// DrillChart rebuilds only the drill-down chart of family. Drilling never
// redraws the rest of the tab.
func DrillChart(app *state.App, family core.Family) (Chart, error) {
	cur, err := app.Cursor(family)
	if err != nil {
		return Chart{}, err
	}
	if family == core.FamilyHomeTransfers {
		home, _ := app.HomeSnapshot()
		var buckets []core.Bucket
		if home != nil {
			buckets = home.Transfers
		}
		return TransferChart(family, buckets, cur), nil
	}

	tab := core.Tab(family)
	snap, ok := app.Snapshot(tab)
	if !ok || snap == nil {
		return Chart{}, fmt.Errorf("%s: %w", tab, ErrNoSnapshot)
	}
	switch family {
	case core.FamilyExpense:
		return CategoryChart(family, snap.ExpenseBuckets(), cur), nil
	case core.FamilyIncome:
		return CategoryChart(family, snap.ByBaseIncome, cur), nil
	default:
		return TransferChart(family, snap.Transfers, cur), nil
	}
}

// BuildHome derives the overview: summary cards, goals, recent operations,
// top quick items and the home transfers chart.
func BuildHome(app *state.App) Frame {
	home, _ := app.HomeSnapshot()
	scoped, _ := app.Snapshot(app.Active)

	var qa core.QuickAnswers
	var transfers []core.Bucket
	if home != nil {
		transfers = home.Transfers
		if home.QuickAnswers != nil {
			qa = *home.QuickAnswers
		}
	}

	return Frame{
		Charts: []Chart{TransferChart(core.FamilyHomeTransfers, transfers, app.Cursors[core.FamilyHomeTransfers])},
		Tables: []Table{RecentOpsTable(app.RecentOps)},
		Texts: []Text{
			SummaryText(core.Summarize(home, scoped)),
			GoalsText(app.Goals),
			listText(TextHomeTopExpenses, "Крупные траты", qa.TopExpenses, homeTopItems),
			listText(TextHomeTopIncomes, "Крупные поступления", qa.TopIncomes, homeTopItems),
		},
	}
}

// BuildLists derives the operation history and uploaded files tables.
func BuildLists(app *state.App) Frame {
	return Frame{Tables: []Table{HistoryTable(app.History.Items), FilesTable(app.Files)}}
}

func HistoryTable(ops []core.Operation) Table {
	return OperationsTable(TableHistory, "История операций", msgNoOperations, ops)
}

func RecentOpsTable(ops []core.Operation) Table {
	return OperationsTable(TableRecentOps, "Последние операции", msgNoRecentOps, ops)
}
