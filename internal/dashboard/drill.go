package dashboard

import (
	"context"
	"fmt"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/render"
)

// DrillDown opens the merchant level of bucketID in family's chart. The
// cursor switches level only after the rows arrive, and only if no later
// drill or back happened in the meantime. Only that chart is redrawn.
func (d *Dashboard) DrillDown(ctx context.Context, family core.Family, bucketID string) error {
	if bucketID == "" {
		return ErrEmptyBucket
	}
	d.mu.Lock()
	cur, err := d.app.Cursor(family)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	gen := cur.Begin()
	d.mu.Unlock()

	rows, err := d.backend.MerchantBreakdown(ctx, bucketID, family.OpType())
	if err != nil {
		return d.fail(ctx, log.OpDrill, fmt.Errorf("drill %s/%s: %w", family, bucketID, err))
	}

	d.mu.Lock()
	entered := cur.Enter(gen, bucketID, rows)
	if entered {
		d.redrawFamilyLocked(ctx, family)
	}
	d.mu.Unlock()

	fields := log.NewFields().
		WithOperation(log.OpDrill).
		WithDrill(string(family), bucketID, gen)
	if !entered {
		d.logger.DebugContext(ctx, "Discarded stale merchant rows", fields.ToSlice()...)
		return nil
	}
	d.logger.DebugContext(ctx, "Drilled into bucket", fields.ToSlice()...)

	ev := amqp.NewEvent(amqp.EventDrilled)
	ev.Family, ev.BucketID, ev.Count = string(family), bucketID, len(rows)
	d.publish(ctx, ev)
	return nil
}

// Back returns family's chart to the aggregate level and redraws it.
func (d *Dashboard) Back(ctx context.Context, family core.Family) error {
	d.mu.Lock()
	cur, err := d.app.Cursor(family)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	cur.Back()
	d.redrawFamilyLocked(ctx, family)
	d.mu.Unlock()

	ev := amqp.NewEvent(amqp.EventDrillBack)
	ev.Family = string(family)
	d.publish(ctx, ev)
	return nil
}

func (d *Dashboard) redrawFamilyLocked(ctx context.Context, family core.Family) {
	ch, err := render.DrillChart(d.app, family)
	if err != nil {
		d.sink.Report(ctx, log.OpRender, err)
		return
	}
	d.drawLocked(ctx, ch)
}
