package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"finboard/internal/sheets"
)

var (
	_ sheets.TableWriter = (*Store)(nil)
	_ sheets.TableReader = (*Store)(nil)
)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
	writes int
}

func New() *Store {
	return &Store{sheets: make(map[string][][]string)}
}

// WriteTable stores a copy of the table and returns a synthetic reference.
func (s *Store) WriteTable(_ context.Context, t sheets.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	values := t.Values()
	grid := make([][]string, len(values))
	for i, row := range values {
		grid[i] = append([]string(nil), row...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[t.Sheet] = grid
	s.writes++
	return fmt.Sprintf("mem:%s:%d", t.Sheet, s.writes), nil
}

func (s *Store) ReadTable(_ context.Context, sheet string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, ok := s.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	return grid, nil
}

// Writes returns the number of successful WriteTable calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Sheets lists the written sheet names in sorted order.
func (s *Store) Sheets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
