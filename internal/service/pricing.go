package service

import (
	"vallenar/internal/model"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// maxItemDiscount is the line-level discount a cashier may grant alone.
	maxItemDiscount = decimal.NewFromInt(10)
)

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// percentOf returns base * pct / 100 rounded to cents.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return round2(base.Mul(pct).Div(hundred))
}

// priceLine fills the computed amounts of a quote item.
func priceLine(it *model.QuoteItem) {
	it.Subtotal = round2(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	it.Total = it.Subtotal.Sub(percentOf(it.Subtotal, it.DiscountPercent))
}

// recomputeTotals re-derives subtotal, discount and total from the items and
// the quote-level percentage. total == subtotal - discount holds afterwards.
func recomputeTotals(q *model.Quote) {
	subtotal := decimal.Zero
	for i := range q.Items {
		priceLine(&q.Items[i])
		subtotal = subtotal.Add(q.Items[i].Total)
	}
	q.Subtotal = subtotal
	q.Discount = percentOf(subtotal, q.DiscountPercent)
	q.Total = q.Subtotal.Sub(q.Discount)
}

// Cash-count deviation classes.
const (
	DeviationNormal      = "normal"
	DeviationAdvertencia = "advertencia"
	DeviationCritico     = "critico"
)

// classifyDeviation buckets the absolute deviation percentage of a cash count.
func classifyDeviation(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromInt(1)):
		return DeviationNormal
	case abs.LessThanOrEqual(decimal.NewFromInt(5)):
		return DeviationAdvertencia
	default:
		return DeviationCritico
	}
}

// deviationPercent returns (declared - expected) / expected * 100. A zero
// expectation yields zero when nothing was declared and 100 otherwise.
func deviationPercent(expected, declared decimal.Decimal) decimal.Decimal {
	diff := declared.Sub(expected)
	if expected.IsZero() {
		if diff.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return diff.Div(expected).Mul(hundred).Round(2)
}
