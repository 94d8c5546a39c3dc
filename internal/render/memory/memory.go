// Package memory is a recording render surface for tests and headless runs.
package memory

import (
	"sync"

	"finboard/internal/render"
)

type Surface struct {
	mu       sync.Mutex
	charts   map[render.Canvas]render.Chart
	tables   map[render.Canvas]render.Table
	texts    map[render.Canvas]render.Text
	live     map[render.Canvas]int
	draws    int
	released int
	// overReleased counts Release calls on an already released handle.
	overReleased int
	fail         map[render.Canvas]error
}

func New() *Surface {
	return &Surface{
		charts: make(map[render.Canvas]render.Chart),
		tables: make(map[render.Canvas]render.Table),
		texts:  make(map[render.Canvas]render.Text),
		live:   make(map[render.Canvas]int),
		fail:   make(map[render.Canvas]error),
	}
}

type handle struct {
	s        *Surface
	canvas   render.Canvas
	released bool
}

func (h *handle) Release() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.released {
		h.s.overReleased++
		return
	}
	h.released = true
	h.s.live[h.canvas]--
	h.s.released++
}

// Draw records ch and returns a handle counted as live until released.
func (s *Surface) Draw(ch render.Chart) (render.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[ch.Canvas]; err != nil {
		return nil, err
	}
	s.charts[ch.Canvas] = ch
	s.live[ch.Canvas]++
	s.draws++
	return &handle{s: s, canvas: ch.Canvas}, nil
}

func (s *Surface) Blank(ch render.Chart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[ch.Canvas]; err != nil {
		return err
	}
	s.charts[ch.Canvas] = ch
	return nil
}

func (s *Surface) Table(t render.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[t.Name]; err != nil {
		return err
	}
	s.tables[t.Name] = t
	return nil
}

func (s *Surface) Text(t render.Text) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[t.Name]; err != nil {
		return err
	}
	s.texts[t.Name] = t
	return nil
}

// FailOn makes every draw on canvas c return err.
func (s *Surface) FailOn(c render.Canvas, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[c] = err
}

// LastChart returns the last chart drawn on c.
func (s *Surface) LastChart(c render.Canvas) (render.Chart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.charts[c]
	return ch, ok
}

func (s *Surface) LastTable(name render.Canvas) (render.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	return t, ok
}

func (s *Surface) LastText(name render.Canvas) (render.Text, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.texts[name]
	return t, ok
}

// LiveOn returns the number of unreleased handles on canvas c.
func (s *Surface) LiveOn(c render.Canvas) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[c]
}

// Stats returns the number of draws, releases and releases of handles that
// were already released.
func (s *Surface) Stats() (draws, released, overReleased int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws, s.released, s.overReleased
}
