// Package xlsx exports tables into a local Excel workbook, one sheet per table.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	ports "finboard/internal/sheets"
)

const (
	defaultSheet = "Sheet1"
	maxSheetName = 31
)

var (
	_ ports.TableWriter = (*Workbook)(nil)
	_ ports.TableReader = (*Workbook)(nil)
)

// Workbook writes into a single .xlsx file. The file is created on the first
// write and reopened for every later one.
type Workbook struct {
	mu   sync.Mutex
	path string
}

func New(dir, filename string) (*Workbook, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, errors.New("missing workbook filename")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}
	return &Workbook{path: filepath.Join(dir, filename)}, nil
}

func (w *Workbook) Path() string { return w.path }

// WriteTable replaces the sheet named after the table and saves the workbook.
func (w *Workbook) WriteTable(ctx context.Context, t ports.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	name := SheetName(t.Sheet)

	w.mu.Lock()
	defer w.mu.Unlock()

	f, fresh, err := w.open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := replaceSheet(f, name, fresh); err != nil {
		return "", err
	}
	for i, row := range t.Values() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", err
		}
		r := row
		if err := f.SetSheetRow(name, cell, &r); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if idx, err := f.GetSheetIndex(name); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	if err := f.SaveAs(w.path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	slog.InfoContext(ctx, "Table exported to workbook",
		"path", w.path,
		"sheet", name,
		"rows", len(t.Rows))
	return w.path + "#" + name, nil
}

func (w *Workbook) ReadTable(_ context.Context, sheet string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	name := SheetName(sheet)
	if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", name)
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return rows, nil
}

func (w *Workbook) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, false, fmt.Errorf("open workbook: %w", err)
	}
	return f, false, nil
}

// replaceSheet leaves an empty sheet called name in f. A workbook cannot lose
// its last sheet, so an existing one is swapped through a temporary sheet.
func replaceSheet(f *excelize.File, name string, fresh bool) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx >= 0 {
		r := []rune(name)
		tmp := string(r[:min(len(r), maxSheetName-1)]) + "~"
		if _, err := f.NewSheet(tmp); err != nil {
			return fmt.Errorf("add sheet %s: %w", tmp, err)
		}
		if err := f.DeleteSheet(name); err != nil {
			return fmt.Errorf("delete sheet %s: %w", name, err)
		}
		return f.SetSheetName(tmp, name)
	}

	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}
	if fresh && name != defaultSheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("delete default sheet: %w", err)
		}
	}
	return nil
}

// SheetName maps a table name onto the characters and length Excel accepts.
func SheetName(table string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(table))
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}
