package state

import (
	"fmt"

	"finboard/internal/cache"
	"finboard/internal/core"
)

const (
	LevelAggregate Level = "aggregate"
	LevelMerchant  Level = "merchant"
)

// Level is the zoom of a drill-down chart.
type Level string

// Cursor is the two-level drill-down position of one chart family.
// Selected is set exactly when Level is LevelMerchant, and Rows is empty
// at LevelAggregate. Only one level of history is kept.
type Cursor struct {
	Level    Level              `json:"level"`
	Selected string             `json:"selected,omitempty"`
	Rows     []core.MerchantRow `json:"rows,omitempty"`

	gen cache.Generation
}

func NewCursor() *Cursor {
	return &Cursor{Level: LevelAggregate}
}

// Begin issues a generation for a merchant fetch. Only the most recently
// issued fetch can still enter the merchant level.
func (c *Cursor) Begin() uint64 {
	return c.gen.Next()
}

// Fresh reports whether a fetch issued with gen may still be applied.
func (c *Cursor) Fresh(gen uint64) bool {
	return gen == c.gen.Issued() && gen > c.gen.Committed()
}

// Enter switches to the merchant level for bucket id in one step. A stale
// generation or an empty id leaves the cursor untouched and returns false.
func (c *Cursor) Enter(gen uint64, id string, rows []core.MerchantRow) bool {
	if id == "" || !c.Fresh(gen) {
		return false
	}
	c.gen.Accept(gen)
	if rows == nil {
		rows = []core.MerchantRow{}
	}
	c.Level = LevelMerchant
	c.Selected = id
	c.Rows = rows
	return true
}

// Back returns to the aggregate level and drops any in-flight merchant fetch.
func (c *Cursor) Back() {
	c.Level = LevelAggregate
	c.Selected = ""
	c.Rows = nil
	c.gen.Invalidate()
}

func (c *Cursor) AtMerchant() bool {
	return c.Level == LevelMerchant
}

// Check verifies the cursor invariants.
func (c *Cursor) Check() error {
	switch c.Level {
	case LevelAggregate:
		if c.Selected != "" {
			return fmt.Errorf("aggregate level with selected bucket %q", c.Selected)
		}
		if len(c.Rows) != 0 {
			return fmt.Errorf("aggregate level with %d merchant rows", len(c.Rows))
		}
	case LevelMerchant:
		if c.Selected == "" {
			return fmt.Errorf("merchant level without selected bucket")
		}
	default:
		return fmt.Errorf("unknown level %q", c.Level)
	}
	return nil
}

// VisibleRows returns the merchant rows to display for family. Transfer
// families hide transfers between own accounts unless that would leave
// nothing to show.
func VisibleRows(family core.Family, rows []core.MerchantRow) []core.MerchantRow {
	if family != core.FamilyTransfers && family != core.FamilyHomeTransfers {
		return rows
	}
	filtered := make([]core.MerchantRow, 0, len(rows))
	for _, r := range rows {
		if !r.OwnAccounts() {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return rows
	}
	return filtered
}
