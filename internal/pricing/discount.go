package pricing

// Discount is a per-product price override sourced apart from the product row.
type Discount struct {
	ProductID string  `json:"productId"`
	UnitPrice float64 `json:"unitPrice"`
	Active    bool    `json:"active"`
	Priority  int     `json:"priority"`
}

// WinningDiscounts selects at most one discount per product: the active row
// with the lowest priority. Ties keep the earliest row.
func WinningDiscounts(rows []Discount) map[string]Discount {
	out := make(map[string]Discount, len(rows))
	for _, d := range rows {
		if !d.Active || d.ProductID == "" || !finite(d.UnitPrice) || d.UnitPrice < 0 {
			continue
		}
		current, ok := out[d.ProductID]
		if !ok || d.Priority < current.Priority {
			out[d.ProductID] = d
		}
	}
	return out
}
