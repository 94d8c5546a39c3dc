package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/state"
)

const (
	msgNoData          = "Нет данных"
	msgNoMerchants     = "Нет данных по мерчантам"
	msgNoTransfers     = "Нет данных по переводам"
	msgNoTransfersTab  = "Нет переводов в выбранном периоде"
	msgNoPeriodData    = "Нет данных для выбранного периода"
	msgNoPeriodShort   = "Нет данных за выбранный период"
	msgNoGoals         = "Цели пока не заданы"
	msgNoRecentOps     = "Нет операций за последнюю неделю"
	msgNoOperations    = "Нет операций"
	msgNoFiles         = "Нет загруженных файлов"
	msgInsufficient    = "Нет достаточных данных для расчёта"
	msgPickCategory    = "Выберите категорию"
	legendCategories   = "Категории"
	legendMerchants    = "Мерчанты"
	legendTransferCats = "Категории переводов"
	seriesIncome       = "Доходы"
	seriesExpense      = "Расходы"
)

var operationColumns = []string{"Дата", "Банк", "Описание", "Категория", "Сумма"}

type shareCopy struct {
	canvas   Canvas
	title    string
	subtitle string
}

var shareText = map[core.Family]shareCopy{
	core.FamilyExpense: {CanvasExpenseShare, "Расходы по категориям", "Доли трат по категориям"},
	core.FamilyIncome:  {CanvasIncomeShare, "Доходы по категориям", "Доли доходов по категориям"},
}

// SignFilter keeps the buckets that belong on a share chart: strictly
// negative amounts for expenses, strictly positive for income.
func SignFilter(family core.Family, buckets []core.Bucket) []core.Bucket {
	out := make([]core.Bucket, 0, len(buckets))
	for _, b := range buckets {
		switch {
		case family == core.FamilyExpense && b.Amount.IsNegative():
			out = append(out, b)
		case family == core.FamilyIncome && b.Amount.IsPositive():
			out = append(out, b)
		}
	}
	return out
}

func palette(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Color(i)
	}
	return out
}

func shareTooltips(labels []string, values []decimal.Decimal) []string {
	total := core.Sum(values)
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%s: %s (%s%%)", labels[i], core.FormatAmount(v), core.Percent(v, total))
	}
	return out
}

func plainTooltips(labels []string, values []decimal.Decimal) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%s: %s", labels[i], core.FormatAmount(v))
	}
	return out
}

func bucketSeries(buckets []core.Bucket, abs bool) ([]string, []decimal.Decimal) {
	labels := make([]string, len(buckets))
	values := make([]decimal.Decimal, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label()
		values[i] = b.Amount
		if abs {
			values[i] = b.Amount.Abs()
		}
	}
	return labels, values
}

func merchantSeries(rows []core.MerchantRow) ([]string, []decimal.Decimal) {
	labels := make([]string, len(rows))
	values := make([]decimal.Decimal, len(rows))
	for i, r := range rows {
		labels[i] = r.Label()
		values[i] = r.Amount
	}
	return labels, values
}

func drillLegend(title string, buckets []core.Bucket, colors []string) Legend {
	items := make([]LegendItem, len(buckets))
	for i, b := range buckets {
		items[i] = LegendItem{Label: b.Label(), Color: colors[i], ID: b.ID}
	}
	return Legend{Title: title, Items: items}
}

func plainLegend(title string, labels, colors []string) Legend {
	items := make([]LegendItem, len(labels))
	for i, l := range labels {
		items[i] = LegendItem{Label: l, Color: colors[i]}
	}
	return Legend{Title: title, Items: items}
}

// CategoryChart draws the expense or income share chart at the cursor's level.
func CategoryChart(family core.Family, buckets []core.Bucket, cur *state.Cursor) Chart {
	sc := shareText[family]
	ch := Chart{Canvas: sc.canvas, Kind: KindDoughnut}

	if !cur.AtMerchant() {
		filtered := SignFilter(family, buckets)
		ch.Title, ch.Subtitle = sc.title, sc.subtitle
		if len(filtered) == 0 {
			ch.Empty = true
			ch.Legend = Legend{Title: legendCategories, Empty: msgNoData}
			return ch
		}
		labels, values := bucketSeries(filtered, true)
		colors := palette(len(labels))
		ch.Labels = labels
		ch.Datasets = []Dataset{{Values: values, Colors: colors}}
		ch.Tooltips = shareTooltips(labels, values)
		ch.Legend = drillLegend(legendCategories, filtered, colors)
		return ch
	}

	ch.Title = legendMerchants
	ch.BackVisible = true
	if len(cur.Rows) == 0 {
		ch.Subtitle = msgPickCategory
		ch.Empty = true
		ch.Legend = Legend{Title: legendMerchants, Empty: msgNoMerchants}
		return ch
	}
	labels, values := merchantSeries(cur.Rows)
	colors := palette(len(labels))
	ch.Subtitle = "Траты внутри выбранной категории"
	ch.Labels = labels
	ch.Datasets = []Dataset{{Values: values, Colors: colors}}
	ch.Tooltips = shareTooltips(labels, values)
	ch.Legend = plainLegend(legendMerchants, labels, colors)
	return ch
}

// TransferChart draws a transfers drill-down chart: a doughnut over non-zero
// transfer categories, or a bar chart of merchants inside the selected one.
func TransferChart(family core.Family, buckets []core.Bucket, cur *state.Cursor) Chart {
	ch := Chart{Canvas: CanvasTransfers, Title: "Переводы по категориям", Subtitle: "Пополнения, снятия и внутренние движения"}
	legendTitle := legendCategories
	if family == core.FamilyHomeTransfers {
		ch = Chart{Canvas: CanvasHomeTransfers, Title: "Переводы"}
		legendTitle = legendTransferCats
	}

	if !cur.AtMerchant() {
		ch.Kind = KindDoughnut
		nonZero := make([]core.Bucket, 0, len(buckets))
		for _, b := range buckets {
			if !b.Amount.IsZero() {
				nonZero = append(nonZero, b)
			}
		}
		if len(nonZero) == 0 {
			ch.Empty = true
			if family == core.FamilyTransfers {
				ch.Subtitle = msgNoPeriodShort
			}
			ch.Legend = Legend{Title: legendTitle, Empty: msgNoTransfers}
			return ch
		}
		labels, values := bucketSeries(nonZero, true)
		colors := palette(len(labels))
		ch.Labels = labels
		ch.Datasets = []Dataset{{Values: values, Colors: colors}}
		ch.Tooltips = plainTooltips(labels, values)
		ch.Legend = drillLegend(legendTitle, nonZero, colors)
		return ch
	}

	ch.Kind = KindBar
	ch.Title = legendMerchants
	ch.Subtitle = "Крупнейшие получатели и отправители"
	ch.BackVisible = true
	rows := state.VisibleRows(family, cur.Rows)
	if len(rows) == 0 {
		ch.Empty = true
		ch.Subtitle = msgNoMerchants
		ch.Legend = Legend{Title: legendMerchants, Empty: msgNoMerchants}
		return ch
	}
	labels, values := merchantSeries(rows)
	colors := palette(len(labels))
	ch.Labels = labels
	ch.Datasets = []Dataset{{Values: values, Colors: colors}}
	ch.Tooltips = plainTooltips(labels, values)
	ch.Legend = plainLegend(legendMerchants, labels, colors)
	return ch
}

// TopBuckets returns the n largest expense buckets by magnitude. Ties keep
// server order.
func TopBuckets(buckets []core.Bucket, n int) []core.Bucket {
	expenses := SignFilter(core.FamilyExpense, buckets)
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Amount.Abs().GreaterThan(expenses[j].Amount.Abs())
	})
	if len(expenses) > n {
		expenses = expenses[:n]
	}
	return expenses
}

// TopCategoriesChart is a horizontal bar chart of the top n expense
// categories. Tooltips give each bar's share of the top-n sum. Legend IDs
// feed the category filter.
func TopCategoriesChart(canvas Canvas, buckets []core.Bucket, n int) Chart {
	ch := Chart{Canvas: canvas, Kind: KindBar, Title: fmt.Sprintf("Топ %d категорий расходов", n)}
	top := TopBuckets(buckets, n)
	if len(top) == 0 {
		ch.Empty = true
		return ch
	}
	labels, values := bucketSeries(top, true)
	colors := palette(len(labels))
	ch.Labels = labels
	ch.Datasets = []Dataset{{Values: values, Colors: colors}}
	ch.Tooltips = shareTooltips(labels, values)
	ch.Legend = drillLegend(legendCategories, top, colors)
	return ch
}

func trendLabels(points []core.TrendPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.DisplayLabel()
	}
	return out
}

func lineChart(canvas Canvas, title, series, color string, labels []string, values []decimal.Decimal) Chart {
	ch := Chart{Canvas: canvas, Kind: KindLine, Title: title}
	if len(values) == 0 {
		ch.Empty = true
		return ch
	}
	colors := make([]string, len(values))
	for i := range colors {
		colors[i] = color
	}
	ch.Labels = labels
	ch.Datasets = []Dataset{{Label: series, Values: values, Colors: colors}}
	ch.Tooltips = plainTooltips(labels, values)
	return ch
}

// ExpenseMagnitudes returns |expense| for every point.
func ExpenseMagnitudes(points []core.TrendPoint) []decimal.Decimal {
	out := make([]decimal.Decimal, len(points))
	for i, p := range points {
		out[i] = p.Expense.Abs()
	}
	return out
}

// DynamicsChart plots monthly or weekly expense magnitude.
func DynamicsChart(snap *core.Snapshot, mode string) Chart {
	points := snap.Trend
	if mode == state.DynamicsWeek {
		points = snap.TrendWeekly
	}
	return lineChart(CanvasExpenseDynamics, "Динамика расходов", seriesExpense, colorExpense,
		trendLabels(points), ExpenseMagnitudes(points))
}

// Cumulative returns the running sum of daily expense magnitudes. The
// result never decreases and ends at the total magnitude.
func Cumulative(points []core.TrendPoint) []decimal.Decimal {
	out := make([]decimal.Decimal, len(points))
	acc := decimal.Zero
	for i, p := range points {
		acc = acc.Add(p.Expense.Abs())
		out[i] = acc
	}
	return out
}

func CumulativeChart(snap *core.Snapshot) Chart {
	return lineChart(CanvasExpenseCumulative, "Накопленные расходы", "Накопленные расходы", colorExpense,
		trendLabels(snap.TrendDaily), Cumulative(snap.TrendDaily))
}

func IncomeSourcesChart(buckets []core.Bucket) Chart {
	ch := Chart{Canvas: CanvasIncomeSources, Kind: KindBar, Title: "Источники доходов"}
	if len(buckets) == 0 {
		ch.Empty = true
		return ch
	}
	labels, values := bucketSeries(buckets, false)
	ch.Labels = labels
	ch.Datasets = []Dataset{{Values: values, Colors: palette(len(labels))}}
	ch.Tooltips = plainTooltips(labels, values)
	return ch
}

func IncomeTimelineChart(points []core.TrendPoint) Chart {
	values := make([]decimal.Decimal, len(points))
	for i, p := range points {
		values[i] = p.Income
	}
	return lineChart(CanvasIncomeTimeline, "Доходы по месяцам", seriesIncome, colorIncome, trendLabels(points), values)
}

// NetSeries returns income minus expense magnitude for every point.
func NetSeries(points []core.TrendPoint) []decimal.Decimal {
	out := make([]decimal.Decimal, len(points))
	for i, p := range points {
		out[i] = p.Income.Sub(p.Expense.Abs())
	}
	return out
}

// IncomeNetChart colors each period's net result by sign.
func IncomeNetChart(points []core.TrendPoint) Chart {
	ch := Chart{Canvas: CanvasIncomeNet, Kind: KindBar, Title: "Чистый результат"}
	if len(points) == 0 {
		ch.Empty = true
		return ch
	}
	labels := trendLabels(points)
	net := NetSeries(points)
	colors := make([]string, len(net))
	for i, v := range net {
		colors[i] = colorIncome
		if v.IsNegative() {
			colors[i] = colorExpense
		}
	}
	ch.Labels = labels
	ch.Datasets = []Dataset{{Values: net, Colors: colors}}
	ch.Tooltips = plainTooltips(labels, net)
	return ch
}

func TransferList(buckets []core.Bucket) Table {
	t := Table{Name: TableTransferList, Title: "Переводы", Columns: []string{"Категория", "Сумма"}, Empty: msgNoTransfersTab}
	for _, b := range buckets {
		t.Rows = append(t.Rows, []string{b.Label(), core.FormatAmount(b.Amount.Abs())})
	}
	return t
}

func trendFor(snap *core.Snapshot, mode string) []core.TrendPoint {
	switch mode {
	case state.TrendWeekly:
		return snap.TrendWeekly
	case state.TrendDaily:
		return snap.TrendDaily
	default:
		return snap.Trend
	}
}

// TrendChart plots income and expense for the selected granularity.
func TrendChart(snap *core.Snapshot, mode string) Chart {
	points := trendFor(snap, mode)
	ch := Chart{Canvas: CanvasTrend, Kind: KindLine, Title: "Тренд"}
	if len(points) == 0 {
		ch.Empty = true
		return ch
	}
	labels := trendLabels(points)
	income := make([]decimal.Decimal, len(points))
	expense := make([]decimal.Decimal, len(points))
	tips := make([]string, len(points))
	for i, p := range points {
		income[i] = p.Income
		expense[i] = p.Expense
		tips[i] = fmt.Sprintf("%s: %s / %s", labels[i], core.FormatAmount(p.Income), core.FormatAmount(p.Expense))
	}
	ch.Labels = labels
	ch.Datasets = []Dataset{
		{Label: seriesIncome, Values: income, Colors: []string{colorIncome}},
		{Label: seriesExpense, Values: expense, Colors: []string{colorExpense}},
	}
	ch.Tooltips = tips
	ch.Legend = plainLegend("", []string{seriesIncome, seriesExpense}, []string{colorIncome, colorExpense})
	return ch
}

// BalanceSpark is the running net balance over the monthly trend.
func BalanceSpark(points []core.TrendPoint) Chart {
	net := NetSeries(points)
	acc := decimal.Zero
	running := make([]decimal.Decimal, len(net))
	for i, v := range net {
		acc = acc.Add(v)
		running[i] = acc
	}
	return lineChart(CanvasBalanceSpark, "Баланс", "Баланс", colorIncome, trendLabels(points), running)
}

// BestWorst names the periods with the highest and lowest net result. With
// fewer than two periods it shows a placeholder.
func BestWorst(points []core.TrendPoint) Text {
	t := Text{Name: TextQuickBestWorst, Title: "Лучший и худший период"}
	if len(points) < 2 {
		t.Lines = []string{msgInsufficient}
		t.Muted = true
		return t
	}
	net := NetSeries(points)
	best, worst := 0, 0
	for i := range net {
		if net[i].GreaterThan(net[best]) {
			best = i
		}
		if net[i].LessThan(net[worst]) {
			worst = i
		}
	}
	t.Lines = []string{
		fmt.Sprintf("Лучший: %s %s", points[best].DisplayLabel(), core.FormatAmount(net[best])),
		fmt.Sprintf("Худший: %s %s", points[worst].DisplayLabel(), core.FormatAmount(net[worst])),
	}
	return t
}

func quickLines(items []core.QuickItem, limit int) []string {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%s  %s  %s", core.FormatDate(it.Date), it.Title, core.FormatAmount(it.Amount))
	}
	return out
}

func listText(name Canvas, title string, items []core.QuickItem, limit int) Text {
	if len(items) == 0 {
		return Text{Name: name, Title: title, Lines: []string{msgNoData}, Muted: true}
	}
	return Text{Name: name, Title: title, Lines: quickLines(items, limit)}
}

func categoryText(name Canvas, title string, b *core.Bucket) Text {
	if b == nil {
		return Text{Name: name, Title: title, Lines: []string{msgNoData}, Muted: true}
	}
	return Text{Name: name, Title: title, Lines: []string{b.Label() + "  " + core.FormatAmount(b.Amount.Abs())}}
}

// QuickCards renders the quick answers summary. Balance and delta cards
// appear only when the server sends them.
func QuickCards(qa *core.QuickAnswers) []Text {
	if qa == nil {
		return []Text{{Name: TextQuickEmpty, Lines: []string{msgNoPeriodData}, Muted: true}}
	}
	cards := []Text{
		listText(TextQuickTopExpenses, "Топ 5 трат", qa.TopExpenses, 0),
		listText(TextQuickTopIncomes, "Топ 5 доходов", qa.TopIncomes, 0),
	}
	if qa.Balance != nil {
		cards = append(cards, Text{Name: TextQuickBalance, Title: "Баланс за период", Lines: []string{
			seriesIncome + "  " + core.FormatAmount(qa.Balance.Income),
			seriesExpense + "  " + core.FormatAmount(qa.Balance.Expense),
			"Итог  " + core.FormatAmount(qa.Balance.Net),
		}})
	}
	cards = append(cards,
		categoryText(TextQuickExpenseCategory, "Самая затратная категория", qa.TopExpenseCategory),
		categoryText(TextQuickIncomeCategory, "Самая доходная категория", qa.TopIncomeCategory),
	)
	if qa.Delta != nil {
		cards = append(cards, Text{Name: TextQuickDelta, Title: "Изменения к прошлому периоду", Lines: []string{
			seriesExpense + "  " + core.FormatAmount(qa.Delta.Expense),
			seriesIncome + "  " + core.FormatAmount(qa.Delta.Income),
		}})
	}
	return cards
}

// OperationsTable lists operations newest first as sent by the server.
func OperationsTable(name Canvas, title, empty string, ops []core.Operation) Table {
	t := Table{Name: name, Title: title, Columns: operationColumns, Empty: empty}
	for _, op := range ops {
		category := op.CategoryName
		if category == "" {
			category = "-"
		}
		t.Rows = append(t.Rows, []string{
			core.FormatDate(op.Date),
			op.Bank,
			op.Description,
			category,
			core.FormatAmount(op.Amount),
		})
	}
	return t
}

func FilesTable(files []core.File) Table {
	t := Table{Name: TableFiles, Title: "Файлы", Columns: []string{"Файл", "Банк", "Операций"}, Empty: msgNoFiles}
	for _, f := range files {
		t.Rows = append(t.Rows, []string{f.Name, f.Bank, strconv.Itoa(f.Count)})
	}
	return t
}

func SummaryText(s core.Summary) Text {
	return Text{Name: TextSummary, Title: "Сводка", Lines: []string{
		seriesIncome + "  " + core.FormatAmount(s.Income),
		seriesExpense + "  " + core.FormatAmount(s.Expense),
		"Итог  " + core.FormatAmount(s.Net),
		"Без категории  " + strconv.Itoa(s.Unknown),
		"Несопоставлено  " + strconv.Itoa(s.Unmapped),
		"Операций  " + strconv.Itoa(s.Operations),
	}}
}

func GoalsText(goals string) Text {
	value := strings.TrimSpace(goals)
	if value == "" {
		return Text{Name: TextGoals, Title: "Цели", Lines: []string{msgNoGoals}, Muted: true}
	}
	return Text{Name: TextGoals, Title: "Цели", Lines: strings.Split(value, "\n")}
}
