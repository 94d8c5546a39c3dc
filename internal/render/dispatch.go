package render

import (
	"errors"
	"fmt"
	"sync"

	"finboard/internal/log"
)

// Handle is a live chart instance on a surface.
type Handle interface {
	Release()
}

// Surface is where frames end up. Draw creates a chart instance and
// returns its handle. Blank shows an empty-state chart that holds no
// instance.
type Surface interface {
	Draw(ch Chart) (Handle, error)
	Blank(ch Chart) error
	Table(t Table) error
	Text(t Text) error
}

// Dispatcher pushes frames to a surface and owns the chart handles. At most
// one live handle exists per canvas; the previous one is always released
// before a canvas is redrawn.
type Dispatcher struct {
	surface Surface
	logger  *log.Logger

	mu      sync.Mutex
	handles map[Canvas]Handle
}

func NewDispatcher(surface Surface, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Dispatcher{
		surface: surface,
		logger:  logger.WithComponent(log.ComponentRender),
		handles: make(map[Canvas]Handle),
	}
}

// Apply draws every element of f. A failing element does not stop the
// others; all failures are returned joined. An empty frame is a no-op.
func (d *Dispatcher) Apply(f Frame) error {
	if f.Empty() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, ch := range f.Charts {
		if err := d.drawLocked(ch); err != nil {
			errs = append(errs, err)
		}
	}
	for _, t := range f.Tables {
		if err := d.surface.Table(t); err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.Name, err))
		}
	}
	for _, t := range f.Texts {
		if err := d.surface.Text(t); err != nil {
			errs = append(errs, fmt.Errorf("text %s: %w", t.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.Error("Frame render failed", log.FieldTab, string(f.Tab), log.FieldError, err.Error())
		return err
	}
	d.logger.Debug("Frame rendered", log.FieldTab, string(f.Tab), "canvases", f.Canvases())
	return nil
}

// DrawChart redraws a single canvas.
func (d *Dispatcher) DrawChart(ch Chart) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawLocked(ch)
}

func (d *Dispatcher) drawLocked(ch Chart) error {
	d.releaseLocked(ch.Canvas)
	if ch.Empty {
		if err := d.surface.Blank(ch); err != nil {
			return fmt.Errorf("chart %s: %w", ch.Canvas, err)
		}
		return nil
	}
	h, err := d.surface.Draw(ch)
	if err != nil {
		return fmt.Errorf("chart %s: %w", ch.Canvas, err)
	}
	d.handles[ch.Canvas] = h
	return nil
}

func (d *Dispatcher) releaseLocked(c Canvas) {
	if h, ok := d.handles[c]; ok {
		h.Release()
		delete(d.handles, c)
	}
}

func (d *Dispatcher) ReleaseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.handles {
		d.releaseLocked(c)
	}
}

// Live returns the number of live chart handles.
func (d *Dispatcher) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}
