package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySheetName = errors.New("empty sheet name")
	ErrNotReadable    = errors.New("writer cannot read tables back")
	ErrCopiesDiffer   = errors.New("exported copies differ")
)

// Table is one exported sheet: a header row followed by data rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// Values returns the header and rows as one grid.
func (t Table) Values() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	if len(t.Header) > 0 {
		out = append(out, t.Header)
	}
	return append(out, t.Rows...)
}

func (t Table) Validate() error {
	if strings.TrimSpace(t.Sheet) == "" {
		return ErrEmptySheetName
	}
	return nil
}

// Ports for outbound adapters.
type (
	// TableWriter replaces the contents of a named sheet and returns a
	// reference to where the data landed.
	TableWriter interface {
		WriteTable(ctx context.Context, t Table) (ref string, err error)
	}

	// TableReader reads a previously written sheet back.
	TableReader interface {
		ReadTable(ctx context.Context, sheet string) ([][]string, error)
	}
)

// Multi writes every table to all of its writers and joins their
// references. It stops at the first failure.
type Multi []TableWriter

func (m Multi) WriteTable(ctx context.Context, t Table) (string, error) {
	refs := make([]string, 0, len(m))
	for _, w := range m {
		ref, err := w.WriteTable(ctx, t)
		if err != nil {
			return strings.Join(refs, ", "), err
		}
		refs = append(refs, ref)
	}
	return strings.Join(refs, ", "), nil
}

// ReadTable returns sheet as stored by every writer. It fails when one of
// them cannot read tables back or when the stored copies differ.
func (m Multi) ReadTable(ctx context.Context, sheet string) ([][]string, error) {
	if len(m) == 0 {
		return nil, ErrNotReadable
	}
	var first [][]string
	for i, w := range m {
		r, ok := w.(TableReader)
		if !ok {
			return nil, fmt.Errorf("%w: writer %d", ErrNotReadable, i)
		}
		grid, err := r.ReadTable(ctx, sheet)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			first = grid
			continue
		}
		if !SameGrid(first, grid) {
			return nil, fmt.Errorf("%w: %s", ErrCopiesDiffer, sheet)
		}
	}
	return first, nil
}

// SameGrid compares two grids the way spreadsheets store them: trailing
// empty cells and trailing empty rows are not significant.
func SameGrid(a, b [][]string) bool {
	a, b = trimGrid(a), trimGrid(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ra, rb := trimRow(a[i]), trimRow(b[i])
		if len(ra) != len(rb) {
			return false
		}
		for j := range ra {
			if ra[j] != rb[j] {
				return false
			}
		}
	}
	return true
}

func trimRow(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}

func trimGrid(grid [][]string) [][]string {
	n := len(grid)
	for n > 0 && len(trimRow(grid[n-1])) == 0 {
		n--
	}
	return grid[:n]
}
