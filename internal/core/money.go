// Package core holds the analytics data model shared by the API client,
// the dashboard state and the renderers.
//
// This file contains display formatting for amounts, percentages and dates.
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const currencySymbol = "₽"

var hundred = decimal.NewFromInt(100)

// FormatAmount renders a ruble amount rounded to whole units with space
// grouped thousands.
//
// Examples:
//
//	FormatAmount(1234.5)   -> "1 235 ₽"
//	FormatAmount(-1000000) -> "-1 000 000 ₽"
func FormatAmount(d decimal.Decimal) string {
	rounded := d.Round(0)
	digits := rounded.Abs().String()

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteByte(' ')
	b.WriteString(currencySymbol)
	return b.String()
}

// Percent returns part/total*100 with one decimal place, "0.0" for a zero total.
func Percent(part, total decimal.Decimal) string {
	if total.IsZero() {
		return "0.0"
	}
	return part.Div(total).Mul(hundred).StringFixed(1)
}

// FormatDate renders ISO dates and timestamps as dd.mm.yyyy. Unparseable
// input is returned unchanged, empty input as "-".
func FormatDate(s string) string {
	if s == "" {
		return "-"
	}
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02.01.2006")
		}
	}
	return s
}

// Sum adds the given values.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
