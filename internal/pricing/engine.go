package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// Line is a cart line as stored by the client. Price is never stored.
type Line struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Qty       float64 `json:"qty"`
}

// Totals aggregates the priced lines of a cart.
type Totals struct {
	Subtotal         float64 `json:"subtotal"`
	OriginalSubtotal float64 `json:"originalSubtotal"`
	DiscountTotal    float64 `json:"discountTotal"`
	Count            int     `json:"count"`
}

// Summary is the order-facing view of Totals, rounded to cents.
type Summary struct {
	Subtotal         float64 `json:"subtotal"`
	OriginalSubtotal float64 `json:"originalSubtotal"`
	Discount         float64 `json:"discount"`
	Tax              float64 `json:"tax"`
	Total            float64 `json:"total"`
}

// ComputeTotals prices every line against the current product rows and winning
// discounts. Lines whose product is missing or offline are skipped and their
// product ids returned so callers can flag them; they never fail the whole
// computation.
func ComputeTotals(lines []Line, products map[string]Product, discounts map[string]Discount) (Totals, []LineQuote, []string) {
	var (
		totals  Totals
		quotes  = make([]LineQuote, 0, len(lines))
		skipped []string
	)
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok || !p.IsOnline {
			skipped = append(skipped, line.ProductID)
			continue
		}
		var disc *Discount
		if d, ok := discounts[line.ProductID]; ok {
			disc = &d
		}
		q := QuoteLine(p, disc, line.Qty)
		quotes = append(quotes, q)
		totals.Subtotal += q.LineTotal
		totals.OriginalSubtotal += q.BaseTotal
		totals.Count++
	}
	totals.DiscountTotal = math.Min(math.Max(0, totals.OriginalSubtotal-totals.Subtotal), totals.OriginalSubtotal)
	return totals, quotes, skipped
}

// Summarize rounds the totals to cents and applies tax on the subtotal in
// basis points.
func Summarize(t Totals, taxBps int) Summary {
	subtotal := money(t.Subtotal)
	original := money(t.OriginalSubtotal)
	discount := money(t.DiscountTotal)
	if discount.GreaterThan(original) {
		discount = original
	}
	tax := decimal.Zero
	if taxBps > 0 && subtotal.IsPositive() {
		tax = subtotal.Mul(decimal.NewFromInt(int64(taxBps))).Div(decimal.NewFromInt(10000)).Round(2)
	}
	total := subtotal.Add(tax)
	return Summary{
		Subtotal:         subtotal.InexactFloat64(),
		OriginalSubtotal: original.InexactFloat64(),
		Discount:         discount.InexactFloat64(),
		Tax:              tax.InexactFloat64(),
		Total:            total.InexactFloat64(),
	}
}

// RoundMoney rounds an amount to cents. Negative or non-finite amounts
// become zero.
func RoundMoney(v float64) float64 {
	return money(v).InexactFloat64()
}

func money(v float64) decimal.Decimal {
	if !finite(v) || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(2)
}
