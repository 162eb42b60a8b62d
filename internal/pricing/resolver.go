package pricing

import "math"

// LineQuote is the display and order view of a single cart line.
type LineQuote struct {
	ProductID       string  `json:"productId"`
	Slug            string  `json:"slug"`
	Unit            string  `json:"unit"`
	IsWeight        bool    `json:"isWeight"`
	NormalizedQty   float64 `json:"normalizedQty"`
	BasePrice       float64 `json:"basePrice"`
	EffectiveBase   float64 `json:"effectiveBase"`
	UnitPrice       float64 `json:"unitPrice"`
	LineTotal       float64 `json:"lineTotal"`
	BaseTotal       float64 `json:"baseTotal"`
	DiscountAmount  float64 `json:"discountAmount"`
	DiscountPercent int     `json:"discountPercent"`
	Tier            string  `json:"tier,omitempty"`
}

// ResolveUnitPrice picks the unit price for an already normalised quantity.
// An exact tier matching qty (to three decimals) wins outright. Otherwise the
// bulk tier with the greatest MinQty whose range contains qty is used. When no
// tier applies basePrice is returned unchanged.
func ResolveUnitPrice(cfg Config, basePrice, qty float64) float64 {
	price, _ := resolve(cfg, basePrice, qty)
	return price
}

func resolve(cfg Config, basePrice, qty float64) (float64, *Tier) {
	q := round3(qty)
	for i := range cfg.Tiers {
		t := &cfg.Tiers[i]
		if t.Kind == TierExact && round3(t.Qty) == q {
			return t.UnitPrice, t
		}
	}

	var best *Tier
	for i := range cfg.Tiers {
		t := &cfg.Tiers[i]
		if t.Kind != TierBulk || t.MinQty > qty {
			continue
		}
		if t.MaxQty != nil && qty > *t.MaxQty {
			continue
		}
		if best == nil || t.MinQty > best.MinQty {
			best = t
		}
	}
	if best != nil {
		return best.UnitPrice, best
	}
	return basePrice, nil
}

// LineTotal multiplies the unit price by the quantity.
func LineTotal(unitPrice, qty float64) float64 {
	return unitPrice * qty
}

// DiscountPercent reports how much cheaper lineTotal is than baseTotal as a
// whole percentage. It never reports a negative saving.
func DiscountPercent(baseTotal, lineTotal float64) int {
	if !positive(baseTotal) || !finite(lineTotal) {
		return 0
	}
	pct := math.Round((baseTotal - lineTotal) / baseTotal * 100)
	if pct <= 0 {
		return 0
	}
	return int(pct)
}

// QuoteLine prices requestedQty of p. The winning discount, when present,
// replaces the product price as the base price. It therefore only affects the
// line when no tier matches.
func QuoteLine(p Product, d *Discount, requestedQty float64) LineQuote {
	cfg := p.Config()
	qty := NormalizeQuantity(requestedQty, cfg)

	basePrice := nonNegative(p.Price)
	effective := basePrice
	if d != nil && finite(d.UnitPrice) && d.UnitPrice >= 0 {
		effective = d.UnitPrice
	}

	unitPrice, tier := resolve(cfg, effective, qty)
	lineTotal := LineTotal(unitPrice, qty)
	baseTotal := LineTotal(basePrice, qty)

	q := LineQuote{
		ProductID:       p.ID,
		Slug:            p.Slug,
		Unit:            cfg.Unit,
		IsWeight:        cfg.IsWeight,
		NormalizedQty:   qty,
		BasePrice:       basePrice,
		EffectiveBase:   effective,
		UnitPrice:       unitPrice,
		LineTotal:       lineTotal,
		BaseTotal:       baseTotal,
		DiscountAmount:  math.Max(0, baseTotal-lineTotal),
		DiscountPercent: DiscountPercent(baseTotal, lineTotal),
	}
	if tier != nil {
		q.Tier = tier.Label
	}
	return q
}

func nonNegative(v float64) float64 {
	if !finite(v) || v < 0 {
		return 0
	}
	return v
}
