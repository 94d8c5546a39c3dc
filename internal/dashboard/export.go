package dashboard

import (
	"context"
	"fmt"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/render"
	"finboard/internal/sheets"
	"finboard/internal/state"
)

// ExportHistory writes the loaded operation history to the export target.
func (d *Dashboard) ExportHistory(ctx context.Context) (string, error) {
	d.mu.Lock()
	t := toSheet("history", render.HistoryTable(d.app.History.Items))
	d.mu.Unlock()
	return d.write(ctx, t)
}

// ExportTab writes the cached breakdown of tab: category totals for the
// expense, income and transfers tabs, the monthly trend for quick answers.
func (d *Dashboard) ExportTab(ctx context.Context, tab core.Tab) (string, error) {
	d.mu.Lock()
	snap, ok := d.app.Snapshot(tab)
	if !tab.Valid() {
		d.mu.Unlock()
		return "", fmt.Errorf("%w: %q", state.ErrUnknownTab, tab)
	}
	if !ok || snap == nil {
		d.mu.Unlock()
		return "", fmt.Errorf("%s: %w", tab, render.ErrNoSnapshot)
	}
	var t sheets.Table
	switch tab {
	case core.TabExpense:
		t = bucketSheet(tab, snap.ExpenseBuckets())
	case core.TabIncome:
		t = bucketSheet(tab, snap.ByBaseIncome)
	case core.TabTransfers:
		t = bucketSheet(tab, snap.Transfers)
	case core.TabQuick:
		t = trendSheet(tab, snap.Trend)
	}
	d.mu.Unlock()
	return d.write(ctx, t)
}

func (d *Dashboard) write(ctx context.Context, t sheets.Table) (string, error) {
	if d.export == nil {
		return "", ErrNoExporter
	}
	ref, err := d.export.WriteTable(ctx, t)
	if err != nil {
		return "", d.fail(ctx, log.OpExport, fmt.Errorf("export %s: %w", t.Sheet, err))
	}
	d.toast("Экспорт: " + ref)
	d.logger.InfoContext(ctx, "Table exported",
		log.FieldOperation, log.OpExport,
		"sheet", t.Sheet,
		log.FieldRows, len(t.Rows))
	return ref, nil
}

func toSheet(name string, t render.Table) sheets.Table {
	return sheets.Table{Sheet: name, Header: t.Columns, Rows: t.Rows}
}

func bucketSheet(tab core.Tab, buckets []core.Bucket) sheets.Table {
	t := sheets.Table{Sheet: string(tab), Header: []string{"ID", "Категория", "Сумма"}}
	for _, b := range buckets {
		t.Rows = append(t.Rows, []string{b.ID, b.Label(), b.Amount.StringFixed(2)})
	}
	return t
}

func trendSheet(tab core.Tab, points []core.TrendPoint) sheets.Table {
	t := sheets.Table{Sheet: string(tab), Header: []string{"Период", "Доходы", "Расходы"}}
	for _, p := range points {
		t.Rows = append(t.Rows, []string{p.DisplayLabel(), p.Income.StringFixed(2), p.Expense.StringFixed(2)})
	}
	return t
}
