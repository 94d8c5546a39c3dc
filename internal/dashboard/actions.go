package dashboard

import (
	"context"
	"fmt"
	"io"
	"strings"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/render"
	"finboard/internal/state"
	"finboard/internal/storage"
)

const msgNoAnswer = "Нет ответа"

// SetTopN resizes the top categories chart of the expense tab.
func (d *Dashboard) SetTopN(ctx context.Context, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.app.Settings.SetTopN(n); err != nil {
		return err
	}
	d.redrawChartLocked(ctx, core.TabExpense, render.CanvasExpenseTop)
	return nil
}

// SetCategoryFilter records the category picked on the top categories chart.
func (d *Dashboard) SetCategoryFilter(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.app.Settings.CategoryFilter = name
	d.app.Toast = "Фильтр по категории: " + name
}

func (d *Dashboard) ResetCategoryFilter(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.app.Settings.CategoryFilter = ""
	d.app.Toast = "Фильтр по категориям сброшен"
	d.redrawChartLocked(ctx, core.TabExpense, render.CanvasExpenseTop)
}

// SetDynamicsMode switches the expense dynamics between months and weeks.
func (d *Dashboard) SetDynamicsMode(ctx context.Context, mode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.app.Settings.SetDynMode(mode); err != nil {
		return err
	}
	d.redrawChartLocked(ctx, core.TabExpense, render.CanvasExpenseDynamics)
	return nil
}

func (d *Dashboard) SetTrendMode(ctx context.Context, mode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.app.Settings.SetTrendMode(mode); err != nil {
		return err
	}
	d.redrawChartLocked(ctx, core.TabQuick, render.CanvasTrend)
	return nil
}

// redrawChartLocked redraws one chart of tab from the cache. Nothing is
// drawn when the tab has no snapshot yet.
func (d *Dashboard) redrawChartLocked(ctx context.Context, tab core.Tab, canvas render.Canvas) {
	f, err := render.BuildTab(d.app, tab)
	if err != nil {
		return
	}
	if ch, ok := f.Chart(canvas); ok {
		d.drawLocked(ctx, ch)
	}
}

// SetHistoryQuery replaces the operation history filters and reloads it.
func (d *Dashboard) SetHistoryQuery(ctx context.Context, q core.OperationsQuery) error {
	if q.Type == "" {
		q.Type = "all"
	}
	if err := q.Validate(); err != nil {
		return err
	}
	q.Limit = d.historyLimit
	d.mu.Lock()
	d.app.History.Query = q
	d.mu.Unlock()
	return d.LoadOperations(ctx)
}

// ApplyHistoryRange sets the history period to a preset ending today.
func (d *Dashboard) ApplyHistoryRange(ctx context.Context, r core.QuickRange) error {
	p, err := r.Period(d.now())
	if err != nil {
		return err
	}
	d.mu.Lock()
	q := d.app.History.Query
	d.mu.Unlock()
	q.Period = p
	return d.SetHistoryQuery(ctx, q)
}

// LoadOperations fetches the operation history with the current filters.
func (d *Dashboard) LoadOperations(ctx context.Context) error {
	d.mu.Lock()
	q := d.app.History.Query
	d.mu.Unlock()

	items, err := d.backend.Operations(ctx, q)
	if err != nil {
		return d.fail(ctx, "load_operations", err)
	}
	d.mu.Lock()
	d.app.History.Items = items
	d.applyLocked(ctx, render.Frame{Tables: []render.Table{render.HistoryTable(items)}})
	d.mu.Unlock()
	return nil
}

// LoadRecentOperations fetches the operations of the last few days for the
// overview widget.
func (d *Dashboard) LoadRecentOperations(ctx context.Context) error {
	q := core.OperationsQuery{
		Period: core.DaysBack(d.now(), d.recentDays),
		Limit:  d.recentLimit,
	}
	items, err := d.backend.Operations(ctx, q)
	if err != nil {
		return d.fail(ctx, "load_recent_operations", err)
	}
	d.mu.Lock()
	d.app.RecentOps = items
	d.applyLocked(ctx, render.Frame{Tables: []render.Table{render.RecentOpsTable(items)}})
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) LoadFiles(ctx context.Context) error {
	files, err := d.backend.Files(ctx)
	if err != nil {
		return d.fail(ctx, "load_files", err)
	}
	d.mu.Lock()
	d.app.Files = files
	d.applyLocked(ctx, render.Frame{Tables: []render.Table{render.FilesTable(files)}})
	d.mu.Unlock()
	return nil
}

// Import uploads a bank statement and refreshes everything.
func (d *Dashboard) Import(ctx context.Context, bank, filename string, r io.Reader) error {
	if strings.TrimSpace(filename) == "" || r == nil {
		d.toast("Выберите CSV-файл")
		return core.ErrEmptyFile
	}
	if !core.ValidBank(bank) {
		return fmt.Errorf("%w: %q", core.ErrUnknownBank, bank)
	}
	res, err := d.backend.Import(ctx, strings.ToLower(bank), filename, r)
	if err != nil {
		return d.fail(ctx, log.OpImport, err)
	}
	d.logger.InfoContext(ctx, "Statement imported",
		log.FieldOperation, log.OpImport,
		"bank", bank,
		"imported", res.Imported)
	return d.afterChange(ctx, amqp.EventImported, res.Imported, "Импорт завершён")
}

func (d *Dashboard) ImportDemo(ctx context.Context) error {
	if err := d.backend.ImportDemo(ctx); err != nil {
		return d.fail(ctx, log.OpImport, err)
	}
	return d.afterChange(ctx, amqp.EventImported, 0, "Демо-данные загружены")
}

func (d *Dashboard) DeleteFile(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := d.backend.DeleteFile(ctx, id); err != nil {
		return d.fail(ctx, "delete_file", err)
	}
	return d.afterChange(ctx, amqp.EventFileDeleted, 0, "Файл удалён")
}

// Reset deletes all backend data.
func (d *Dashboard) Reset(ctx context.Context) error {
	if err := d.backend.Reset(ctx); err != nil {
		return d.fail(ctx, log.OpReset, err)
	}
	return d.afterChange(ctx, amqp.EventReset, 0, "Данные удалены")
}

// afterChange follows every data-changing call: toast, event, refresh.
func (d *Dashboard) afterChange(ctx context.Context, eventType string, count int, toast string) error {
	d.toast(toast)
	ev := amqp.NewEvent(eventType)
	ev.Count = count
	d.publish(ctx, ev)
	return d.Refresh(ctx)
}

// Ask sends a question to the agent and appends both sides to the chat.
func (d *Dashboard) Ask(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return core.ErrEmptyQuestion
	}
	d.mu.Lock()
	d.app.Messages = append(d.app.Messages, state.Message{Role: state.RoleUser, Text: question})
	d.mu.Unlock()

	answer, err := d.backend.AgentAnswer(ctx, question)
	if err != nil {
		return d.fail(ctx, "ask", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = msgNoAnswer
	}
	d.mu.Lock()
	d.app.Messages = append(d.app.Messages, state.Message{Role: state.RoleAgent, Text: answer})
	d.mu.Unlock()
	return nil
}

// SetGoals stores the goals text, truncated, and redraws the goals card.
func (d *Dashboard) SetGoals(ctx context.Context, text string) error {
	d.mu.Lock()
	stored := d.app.SetGoals(text)
	d.applyLocked(ctx, render.Frame{Texts: []render.Text{render.GoalsText(stored)}})
	d.mu.Unlock()

	if err := d.prefs.Set(ctx, storage.KeyGoals, stored); err != nil {
		return d.fail(ctx, "save_goals", fmt.Errorf("save goals: %w", err))
	}
	return nil
}
