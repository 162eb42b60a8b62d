package pricing

import "math"

// NormalizeQuantity clamps the requested quantity up to the minimum order and
// snaps it to the nearest step, never below the minimum. Weight quantities keep three decimals, count
// quantities are whole numbers. There is no upper bound; stock limits are
// enforced by reconciliation.
func NormalizeQuantity(requested float64, cfg Config) float64 {
	cfg = cfg.Sanitized()
	v := requested
	if !finite(v) {
		v = cfg.MinQty
	}
	if v < cfg.MinQty {
		v = cfg.MinQty
	}
	v = math.Round(v/cfg.StepQty) * cfg.StepQty
	if v < cfg.MinQty {
		// smallest step multiple that still honours the minimum
		v = math.Ceil(cfg.MinQty/cfg.StepQty-1e-9) * cfg.StepQty
	}
	if cfg.IsWeight {
		return round3(v)
	}
	return math.Round(v)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
