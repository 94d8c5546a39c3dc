package core

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TabExpense   Tab = "expense"
	TabIncome    Tab = "income"
	TabTransfers Tab = "transfers"
	TabQuick     Tab = "quick"
)

const (
	FamilyExpense       Family = "expense"
	FamilyIncome        Family = "income"
	FamilyTransfers     Family = "transfers"
	FamilyHomeTransfers Family = "home_transfers"
)

// OwnAccountsMarker labels transfers between the user's own accounts.
const OwnAccountsMarker = "между своими счетами"

type (
	// Tab is one of the analytics views with its own period and cached snapshot.
	Tab string

	// Family identifies a drill-down chart. Each family keeps its own cursor.
	Family string

	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}

	Totals struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Net     decimal.Decimal `json:"net"`
	}

	// Bucket is a server-computed category total. Expense amounts are negative.
	Bucket struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Amount decimal.Decimal `json:"amount"`
	}

	TrendPoint struct {
		Label   string          `json:"label"`
		Date    string          `json:"date,omitempty"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
	}

	QuickItem struct {
		Date   string          `json:"date"`
		Title  string          `json:"title"`
		Amount decimal.Decimal `json:"amount"`
	}

	Delta struct {
		Expense decimal.Decimal `json:"expense"`
		Income  decimal.Decimal `json:"income"`
	}

	QuickAnswers struct {
		TopExpenses        []QuickItem `json:"top_expenses"`
		TopIncomes         []QuickItem `json:"top_incomes"`
		Balance            *Totals     `json:"balance,omitempty"`
		TopExpenseCategory *Bucket     `json:"top_expense_category,omitempty"`
		TopIncomeCategory  *Bucket     `json:"top_income_category,omitempty"`
		Delta              *Delta      `json:"delta,omitempty"`
	}

	// Snapshot is one analytics response. It is replaced wholesale on refetch
	// and never mutated after decoding.
	Snapshot struct {
		Totals        Totals            `json:"totals"`
		Unknown       int               `json:"unknown"`
		Unmapped      []json.RawMessage `json:"unmapped"`
		ByBase        []Bucket          `json:"by_base,omitempty"`
		ByBaseExpense []Bucket          `json:"by_base_expense"`
		ByBaseIncome  []Bucket          `json:"by_base_income"`
		Transfers     []Bucket          `json:"transfers"`
		Trend         []TrendPoint      `json:"trend"`
		TrendWeekly   []TrendPoint      `json:"trend_weekly"`
		TrendDaily    []TrendPoint      `json:"trend_daily"`
		QuickAnswers  *QuickAnswers     `json:"quick_answers,omitempty"`
		PeriodAll     *Period           `json:"period_all,omitempty"`
		OpsCount      int               `json:"ops_count"`
		OpsCountTotal int               `json:"ops_count_total"`
	}

	MerchantRow struct {
		Merchant string          `json:"merchant"`
		Amount   decimal.Decimal `json:"amount"`
	}

	Operation struct {
		Date         string          `json:"date"`
		Bank         string          `json:"bank"`
		Description  string          `json:"description"`
		CategoryName string          `json:"category_name"`
		Amount       decimal.Decimal `json:"amount"`
	}

	File struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Bank  string `json:"bank"`
		Count int    `json:"count"`
	}

	// AnalyticsQuery scopes an analytics fetch. Empty dates mean the server default.
	AnalyticsQuery struct {
		Period           Period
		ExcludeTransfers bool
	}

	// OperationsQuery filters the operation history. Type is "all", "income" or "expense".
	OperationsQuery struct {
		Period           Period
		Type             string
		ExcludeTransfers bool
		Limit            int
	}

	Profile struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
		Language string `json:"language"`
		Timezone string `json:"timezone"`
		Income   string `json:"income"`
		Payday   string `json:"payday"`
		Mode     string `json:"mode"`
		Priority string `json:"priority"`
		Tone     string `json:"tone"`
		Pin      string `json:"pin"`
	}
)

var (
	ErrUnknownBank    = errors.New("unknown bank")
	ErrEmptyFile      = errors.New("empty file")
	ErrEmptyQuestion  = errors.New("empty question")
	ErrInvalidPeriod  = errors.New("invalid period")
	ErrInvalidOpsType = errors.New("invalid operation type")
)

// Tabs lists the analytics tabs in display order.
var Tabs = []Tab{TabExpense, TabIncome, TabTransfers, TabQuick}

// Families lists every drill-down family.
var Families = []Family{FamilyExpense, FamilyIncome, FamilyTransfers, FamilyHomeTransfers}

// Banks accepted by the import endpoint.
var Banks = []string{"alfa", "tinkoff"}

func (t Tab) Valid() bool {
	for _, v := range Tabs {
		if t == v {
			return true
		}
	}
	return false
}

func (f Family) Valid() bool {
	for _, v := range Families {
		if f == v {
			return true
		}
	}
	return false
}

// OpType returns the operation-type filter sent with merchant breakdowns.
// Transfer families do not filter by type.
func (f Family) OpType() string {
	switch f {
	case FamilyExpense:
		return "expense"
	case FamilyIncome:
		return "income"
	default:
		return ""
	}
}

// Complete reports whether both bounds are set.
func (p Period) Complete() bool {
	return p.Start != "" && p.End != ""
}

func (p Period) Empty() bool {
	return p.Start == "" && p.End == ""
}

// Validate checks that set bounds are ISO dates and ordered.
func (p Period) Validate() error {
	start, err := parseISODate(p.Start)
	if err != nil {
		return err
	}
	end, err := parseISODate(p.End)
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Backfill fills missing bounds from the canonical full period.
func (p Period) Backfill(all Period) Period {
	if p.Start == "" {
		p.Start = all.Start
	}
	if p.End == "" {
		p.End = all.End
	}
	return p
}

// Label returns the display name, falling back to the id.
func (b Bucket) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}

func (p TrendPoint) DisplayLabel() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Date
}

func (m MerchantRow) Label() string {
	if m.Merchant != "" {
		return m.Merchant
	}
	return "unknown"
}

// OwnAccounts reports whether the row is a transfer between own accounts.
func (m MerchantRow) OwnAccounts() bool {
	return strings.Contains(strings.ToLower(m.Merchant), OwnAccountsMarker)
}

// ExpenseBuckets returns the expense breakdown. Older servers only send the
// mixed by_base list, which is used when by_base_expense is absent.
func (s *Snapshot) ExpenseBuckets() []Bucket {
	if s.ByBaseExpense != nil {
		return s.ByBaseExpense
	}
	return s.ByBase
}

// OperationsCount prefers the all-time total.
func (s *Snapshot) OperationsCount() int {
	if s.OpsCountTotal > 0 {
		return s.OpsCountTotal
	}
	return s.OpsCount
}

// ValidBank reports whether the import endpoint accepts the bank code.
func ValidBank(bank string) bool {
	for _, b := range Banks {
		if strings.EqualFold(bank, b) {
			return true
		}
	}
	return false
}

func (q OperationsQuery) Validate() error {
	switch q.Type {
	case "", "all", "income", "expense":
	default:
		return ErrInvalidOpsType
	}
	return q.Period.Validate()
}

// Empty reports whether every profile field is blank.
func (p Profile) Empty() bool {
	for _, v := range []string{p.Name, p.Currency, p.Language, p.Timezone, p.Income, p.Payday, p.Mode, p.Priority, p.Tone, p.Pin} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
