package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/render"
	"finboard/internal/state"
)

// Refresh refetches the active tab and the overview, then reloads the
// file list, the operation history and the recent operations in order.
//
// Both analytics fetches run concurrently and nothing is stored unless
// both succeed. Each slot only accepts its response if no later fetch
// for it has been committed in the meantime.
func (d *Dashboard) Refresh(ctx context.Context) error {
	return d.refresh(ctx, true)
}

// Reload is Refresh for callers acting without the user, such as the
// scheduled refresh: open drill-downs stay at the merchant level.
func (d *Dashboard) Reload(ctx context.Context) error {
	return d.refresh(ctx, false)
}

func (d *Dashboard) refresh(ctx context.Context, resetDrill bool) error {
	d.mu.Lock()
	if !d.app.Auth.Initialized {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	tab := d.app.Active
	scope := d.app.ActiveScope()
	period := scope.Period
	query := d.app.Query(tab)
	tabGen := scope.Data.Begin()
	homeGen := d.app.Home.Begin()
	d.mu.Unlock()

	d.logger.DebugContext(ctx, "Refreshing analytics",
		log.NewFields().
			WithOperation(log.OpRefresh).
			WithTab(string(tab), query.Period.Start, query.Period.End).
			ToSlice()...)

	var home, snap *core.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		home, err = d.backend.Analytics(gctx, state.HomeQuery())
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = d.backend.Analytics(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return d.fail(ctx, log.OpRefresh, fmt.Errorf("refresh %s: %w", tab, err))
	}

	d.mu.Lock()
	if !d.app.Auth.Initialized {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	homeOK := d.app.Home.Commit(homeGen, home)
	tabOK := scope.Data.Commit(tabGen, snap)
	if tabOK && !period.Complete() && snap.PeriodAll != nil {
		scope.Period = scope.Period.Backfill(*snap.PeriodAll)
		if tab == d.app.Active {
			d.app.SyncInputs()
		}
	}
	switch {
	case tabOK && tab == d.app.Active:
		d.renderTabLocked(ctx, tab, resetDrill)
	case homeOK:
		d.applyLocked(ctx, render.BuildHome(d.app))
	}
	start, end := scope.Period.Start, scope.Period.End
	d.mu.Unlock()

	if !tabOK {
		d.logger.DebugContext(ctx, "Discarded stale analytics response",
			log.FieldTab, string(tab),
			log.FieldGeneration, tabGen)
	}

	ev := amqp.NewEvent(amqp.EventRefreshed)
	ev.Tab, ev.Start, ev.End = string(tab), start, end
	d.publish(ctx, ev)

	if err := d.LoadFiles(ctx); err != nil {
		return err
	}
	if err := d.LoadOperations(ctx); err != nil {
		return err
	}
	return d.LoadRecentOperations(ctx)
}

// renderTabLocked draws tab and the overview from the cache. With
// resetDrill the category chart of tab returns to the aggregate level.
func (d *Dashboard) renderTabLocked(ctx context.Context, tab core.Tab, resetDrill bool) {
	if resetDrill {
		switch tab {
		case core.TabExpense:
			d.app.Cursors[core.FamilyExpense].Back()
		case core.TabIncome:
			d.app.Cursors[core.FamilyIncome].Back()
		}
	}
	f, err := render.BuildTab(d.app, tab)
	if err != nil {
		d.sink.Report(ctx, log.OpRender, err)
		f = render.Frame{Tab: tab}
	}
	d.applyLocked(ctx, f.Merge(render.BuildHome(d.app)))
}

// SwitchTab activates tab. A cached snapshot is drawn without a network
// call; otherwise the tab is refreshed.
func (d *Dashboard) SwitchTab(ctx context.Context, tab core.Tab) error {
	d.mu.Lock()
	if err := d.app.SetActive(tab); err != nil {
		d.mu.Unlock()
		return err
	}
	_, hit := d.app.Snapshot(tab)
	if hit {
		d.renderTabLocked(ctx, tab, true)
	}
	d.mu.Unlock()

	ev := amqp.NewEvent(amqp.EventTabSwitched)
	ev.Tab = string(tab)
	d.publish(ctx, ev)

	d.logger.DebugContext(ctx, "Tab switched",
		log.FieldOperation, log.OpSwitchTab,
		log.FieldTab, string(tab),
		"cache_hit", hit)
	if hit {
		return nil
	}
	return d.Refresh(ctx)
}

// SetPeriod stores the period of tab. Editing the active tab refetches it;
// other tabs only keep the new period.
func (d *Dashboard) SetPeriod(ctx context.Context, tab core.Tab, p core.Period) error {
	return d.editPeriod(ctx, tab, func(core.Period) core.Period { return p })
}

// SetPeriodStart changes only the start date of the active tab.
func (d *Dashboard) SetPeriodStart(ctx context.Context, start string) error {
	return d.editPeriod(ctx, "", func(cur core.Period) core.Period {
		cur.Start = start
		return cur
	})
}

// SetPeriodEnd changes only the end date of the active tab.
func (d *Dashboard) SetPeriodEnd(ctx context.Context, end string) error {
	return d.editPeriod(ctx, "", func(cur core.Period) core.Period {
		cur.End = end
		return cur
	})
}

// ApplyQuickRange sets tab's period to a preset ending today.
func (d *Dashboard) ApplyQuickRange(ctx context.Context, tab core.Tab, r core.QuickRange) error {
	p, err := r.Period(d.now())
	if err != nil {
		return err
	}
	return d.SetPeriod(ctx, tab, p)
}

// editPeriod applies edit to tab's period, or to the active tab's when tab
// is empty. An invalid result leaves the period unchanged.
func (d *Dashboard) editPeriod(ctx context.Context, tab core.Tab, edit func(core.Period) core.Period) error {
	d.mu.Lock()
	if tab == "" {
		tab = d.app.Active
	}
	scope, err := d.app.Scope(tab)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	next := edit(scope.Period)
	if err := next.Validate(); err != nil {
		d.mu.Unlock()
		return err
	}
	scope.Period = next
	active := tab == d.app.Active
	if active {
		d.app.SyncInputs()
	}
	d.mu.Unlock()

	if !active {
		return nil
	}
	return d.Refresh(ctx)
}
