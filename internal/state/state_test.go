package state

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

func rows(labels ...string) []core.MerchantRow {
	out := make([]core.MerchantRow, len(labels))
	for i, l := range labels {
		out[i] = core.MerchantRow{Merchant: l, Amount: decimal.NewFromInt(int64(100 * (i + 1)))}
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	a := New()
	if a.Active != core.TabExpense {
		t.Errorf("Active = %s, want expense", a.Active)
	}
	for _, tab := range core.Tabs {
		if _, ok := a.Snapshot(tab); ok {
			t.Errorf("tab %s has a cached snapshot at start", tab)
		}
	}
	for _, f := range core.Families {
		c, err := a.Cursor(f)
		if err != nil {
			t.Fatalf("Cursor(%s) error = %v", f, err)
		}
		if c.Level != LevelAggregate {
			t.Errorf("Cursor(%s).Level = %s, want aggregate", f, c.Level)
		}
	}
	if err := a.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
	if !a.Auth.ScreenVisible || a.Auth.Initialized {
		t.Errorf("Auth = %+v, want screen visible and not initialized", a.Auth)
	}
}

func TestCursor_EnterAndBack(t *testing.T) {
	c := NewCursor()
	gen := c.Begin()
	if !c.Enter(gen, "b", rows("Shop")) {
		t.Fatal("Enter() = false, want true")
	}
	if c.Level != LevelMerchant || c.Selected != "b" || len(c.Rows) != 1 {
		t.Errorf("cursor = %+v after Enter", c)
	}
	if err := c.Check(); err != nil {
		t.Errorf("Check() after Enter = %v", err)
	}

	c.Back()
	if c.Level != LevelAggregate || c.Selected != "" || c.Rows != nil {
		t.Errorf("cursor = %+v after Back", c)
	}
	if err := c.Check(); err != nil {
		t.Errorf("Check() after Back = %v", err)
	}
}

func TestCursor_EmptyMerchantRowsStayAtMerchant(t *testing.T) {
	c := NewCursor()
	if !c.Enter(c.Begin(), "b", nil) {
		t.Fatal("Enter() = false, want true")
	}
	if !c.AtMerchant() || c.Rows == nil || len(c.Rows) != 0 {
		t.Errorf("cursor = %+v, want merchant level with empty rows", c)
	}
}

func TestCursor_OutOfOrderDrill(t *testing.T) {
	tests := []struct {
		name     string
		arrive   []int
		selected string
	}{
		{"responses in click order", []int{0, 1}, "second"},
		{"second click answered first", []int{1, 0}, "second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor()
			ids := []string{"first", "second"}
			gens := []uint64{c.Begin(), c.Begin()}
			for _, i := range tt.arrive {
				c.Enter(gens[i], ids[i], rows(ids[i]))
			}
			if c.Selected != tt.selected {
				t.Errorf("Selected = %q, want %q", c.Selected, tt.selected)
			}
			if c.Rows[0].Merchant != tt.selected {
				t.Errorf("Rows belong to %q, want %q", c.Rows[0].Merchant, tt.selected)
			}
		})
	}
}

func TestCursor_BackDropsInFlightDrill(t *testing.T) {
	c := NewCursor()
	gen := c.Begin()
	c.Back()
	if c.Enter(gen, "b", rows("Shop")) {
		t.Error("Enter() after Back = true, want false")
	}
	if c.Level != LevelAggregate {
		t.Errorf("Level = %s, want aggregate", c.Level)
	}
}

func TestCursor_EnterRequiresID(t *testing.T) {
	c := NewCursor()
	if c.Enter(c.Begin(), "", rows("x")) {
		t.Error("Enter() with empty id = true, want false")
	}
	if err := c.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}

func TestCursor_CheckDetectsBrokenInvariant(t *testing.T) {
	broken := []*Cursor{
		{Level: LevelAggregate, Selected: "a"},
		{Level: LevelAggregate, Rows: rows("x")},
		{Level: LevelMerchant},
		{Level: "zoomed"},
	}
	for _, c := range broken {
		if err := c.Check(); err == nil {
			t.Errorf("Check(%+v) = nil, want error", c)
		}
	}
}

func TestVisibleRows(t *testing.T) {
	mixed := rows("Перевод между своими счетами", "Иван И.")
	onlyOwn := rows("Между своими счетами")

	tests := []struct {
		name   string
		family core.Family
		in     []core.MerchantRow
		want   []string
	}{
		{"transfers hides own accounts", core.FamilyTransfers, mixed, []string{"Иван И."}},
		{"home transfers hides own accounts", core.FamilyHomeTransfers, mixed, []string{"Иван И."}},
		{"fallback when everything is own accounts", core.FamilyTransfers, onlyOwn, []string{"Между своими счетами"}},
		{"expense family untouched", core.FamilyExpense, mixed, []string{"Перевод между своими счетами", "Иван И."}},
		{"empty stays empty", core.FamilyTransfers, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VisibleRows(tt.family, tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("VisibleRows() = %+v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Merchant != tt.want[i] {
					t.Errorf("row %d = %q, want %q", i, got[i].Merchant, tt.want[i])
				}
			}
		})
	}
}

func TestApp_Query(t *testing.T) {
	a := New()
	a.Tabs[core.TabExpense].Period = core.Period{Start: "2024-01-01"}
	a.Tabs[core.TabTransfers].Period = core.Period{Start: "2024-01-01", End: "2024-02-01"}

	if q := a.Query(core.TabExpense); !q.Period.Empty() || !q.ExcludeTransfers {
		t.Errorf("Query(expense) = %+v, want no period and transfers excluded", q)
	}
	q := a.Query(core.TabTransfers)
	if q.Period.Start != "2024-01-01" || q.Period.End != "2024-02-01" || q.ExcludeTransfers {
		t.Errorf("Query(transfers) = %+v", q)
	}
	if q := HomeQuery(); !q.ExcludeTransfers || !q.Period.Empty() {
		t.Errorf("HomeQuery() = %+v", q)
	}
}

func TestApp_SetActiveSyncsInputs(t *testing.T) {
	a := New()
	a.Tabs[core.TabIncome].Period = core.Period{Start: "2024-01-01", End: "2024-03-01"}

	if err := a.SetActive(core.TabIncome); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if a.Inputs != a.Tabs[core.TabIncome].Period {
		t.Errorf("Inputs = %+v, want %+v", a.Inputs, a.Tabs[core.TabIncome].Period)
	}
	if err := a.SetActive("budget"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("SetActive(budget) error = %v, want ErrUnknownTab", err)
	}
	if a.Active != core.TabIncome {
		t.Errorf("Active = %s after failed switch, want income", a.Active)
	}
}

func TestApp_UnknownFamily(t *testing.T) {
	if _, err := New().Cursor("savings"); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("Cursor(savings) error = %v, want ErrUnknownFamily", err)
	}
}

func TestSettings(t *testing.T) {
	s := New().Settings
	if err := s.SetTopN(10); err != nil || s.TopN != 10 {
		t.Errorf("SetTopN(10) = %v, TopN = %d", err, s.TopN)
	}
	if err := s.SetTopN(7); !errors.Is(err, ErrInvalidTopN) || s.TopN != 10 {
		t.Errorf("SetTopN(7) = %v, TopN = %d", err, s.TopN)
	}
	if err := s.SetDynMode(DynamicsWeek); err != nil || s.DynMode != DynamicsWeek {
		t.Errorf("SetDynMode(week) = %v", err)
	}
	if err := s.SetDynMode("day"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("SetDynMode(day) = %v, want ErrInvalidMode", err)
	}
	if err := s.SetTrendMode(TrendDaily); err != nil || s.TrendMode != TrendDaily {
		t.Errorf("SetTrendMode(daily) = %v", err)
	}
	if err := s.SetTrendMode("hourly"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("SetTrendMode(hourly) = %v, want ErrInvalidMode", err)
	}
}

func TestApp_SetGoalsTruncates(t *testing.T) {
	a := New()
	long := strings.Repeat("ц", MaxGoalsLength+10)
	got := a.SetGoals(long)
	if n := utf8.RuneCountInString(got); n != MaxGoalsLength {
		t.Errorf("stored %d runes, want %d", n, MaxGoalsLength)
	}
	if a.SetGoals("  "); a.GoalsSet() {
		t.Error("GoalsSet() = true for blank text")
	}
}

func TestApp_ResetSession(t *testing.T) {
	a := New()
	a.Auth = Auth{ScreenVisible: false, PasswordSet: true, Mode: AuthLogin, Initialized: true}
	a.ResetSession()
	if !a.Auth.ScreenVisible || a.Auth.Initialized {
		t.Errorf("Auth = %+v after ResetSession", a.Auth)
	}
}

func TestApp_Serializable(t *testing.T) {
	a := New()
	snap := &core.Snapshot{OpsCount: 3}
	scope := a.Tabs[core.TabQuick]
	scope.Data.Commit(scope.Data.Begin(), snap)
	c := a.Cursors[core.FamilyIncome]
	c.Enter(c.Begin(), "salary", rows("Employer"))

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back App
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got, ok := back.Snapshot(core.TabQuick); !ok || got.OpsCount != 3 {
		t.Errorf("round-tripped quick snapshot = %+v, %v", got, ok)
	}
	if back.Cursors[core.FamilyIncome].Selected != "salary" {
		t.Errorf("round-tripped income cursor = %+v", back.Cursors[core.FamilyIncome])
	}
}
