package core

import "github.com/shopspring/decimal"

// Summary is the set of headline cards shown above every tab.
type Summary struct {
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Net        decimal.Decimal `json:"net"`
	Unknown    int             `json:"unknown"`
	Unmapped   int             `json:"unmapped"`
	Operations int             `json:"operations"`
}

// Summarize derives the cards from the home snapshot. The operation count
// falls back to the home snapshot when the scoped one carries none.
func Summarize(home, scoped *Snapshot) Summary {
	if home == nil {
		return Summary{}
	}
	s := Summary{
		Income:   home.Totals.Income,
		Expense:  home.Totals.Expense,
		Net:      home.Totals.Net,
		Unknown:  home.Unknown,
		Unmapped: len(home.Unmapped),
	}
	if scoped != nil {
		s.Operations = scoped.OperationsCount()
	}
	if s.Operations == 0 {
		s.Operations = home.OpsCountTotal
	}
	return s
}
