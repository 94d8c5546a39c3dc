package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/render"
	"finboard/internal/sheets"
)

const historySheet = "history"

// OperationsSource lists operations from the backend.
type OperationsSource interface {
	Operations(ctx context.Context, q core.OperationsQuery) ([]core.Operation, error)
}

// SyncWorker keeps an exported copy of the operation history in step with
// the backend. It reacts to data-changing dashboard events.
type SyncWorker struct {
	source OperationsSource
	sheets sheets.TableWriter
	days   int
	limit  int
	now    func() time.Time
}

// NewSyncWorker exports the last days of history, at most limit operations.
func NewSyncWorker(source OperationsSource, w sheets.TableWriter, days, limit int) *SyncWorker {
	return &SyncWorker{
		source: source,
		sheets: w,
		days:   days,
		limit:  limit,
		now:    time.Now,
	}
}

// HandleEvent processes one dashboard event from AMQP. Events that do not
// change backend data are acknowledged without work.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev amqp.Event) error {
	slog.InfoContext(ctx, "Processing dashboard event",
		"type", ev.Type,
		"tab", ev.Tab,
		"timestamp", ev.Timestamp)

	if !ev.ChangesData() {
		return nil
	}
	err := w.SyncHistory(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		// Requeueing cannot help until the dashboard logs in again.
		slog.WarnContext(ctx, "History sync skipped, session rejected", "type", ev.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync history after %s: %w", ev.Type, err)
	}
	return nil
}

// SyncHistory exports the current history window. It is also run once at
// startup to recover from events missed while the worker was down.
func (w *SyncWorker) SyncHistory(ctx context.Context) error {
	q := core.OperationsQuery{
		Period: core.DaysBack(w.now(), w.days),
		Type:   "all",
		Limit:  w.limit,
	}
	ops, err := w.source.Operations(ctx, q)
	if err != nil {
		return fmt.Errorf("list operations: %w", err)
	}

	tbl := render.HistoryTable(ops)
	out := sheets.Table{Sheet: historySheet, Header: tbl.Columns, Rows: tbl.Rows}
	if w.unchanged(ctx, out) {
		slog.DebugContext(ctx, "History unchanged, export skipped",
			"operations", len(ops),
			"start_date", q.Period.Start,
			"end_date", q.Period.End)
		return nil
	}
	ref, err := w.sheets.WriteTable(ctx, out)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	slog.InfoContext(ctx, "History synced",
		"sheets_ref", ref,
		"operations", len(ops),
		"start_date", q.Period.Start,
		"end_date", q.Period.End)
	return nil
}

// unchanged reports whether the export target already holds t. Targets
// that cannot be read back are always rewritten.
func (w *SyncWorker) unchanged(ctx context.Context, t sheets.Table) bool {
	r, ok := w.sheets.(sheets.TableReader)
	if !ok {
		return false
	}
	stored, err := r.ReadTable(ctx, t.Sheet)
	if err != nil {
		slog.DebugContext(ctx, "Stored history not readable", "error", err)
		return false
	}
	return sheets.SameGrid(stored, t.Values())
}
