package pricing_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

func floatPtr(v float64) *float64 { return &v }

func TestNormalizeConfigDefaults(t *testing.T) {
	weight := pricing.NormalizeConfig(nil, pricing.Product{IsWeight: true})
	require.Equal(t, "kg", weight.Unit)
	require.True(t, weight.IsWeight)
	require.Equal(t, 0.5, weight.MinQty)
	require.Equal(t, 0.5, weight.StepQty)
	require.Empty(t, weight.Tiers)

	count := pricing.NormalizeConfig(json.RawMessage(`"not an object"`), pricing.Product{})
	require.Equal(t, "pcs", count.Unit)
	require.Equal(t, 1.0, count.MinQty)
	require.Equal(t, 1.0, count.StepQty)
}

func TestNormalizeConfigProductRules(t *testing.T) {
	p := pricing.Product{IsWeight: true, MinOrderQty: floatPtr(0.25), QtyStep: floatPtr(-1)}
	cfg := pricing.NormalizeConfig(nil, p)
	require.Equal(t, 0.25, cfg.MinQty)
	require.Equal(t, 0.5, cfg.StepQty, "negative product step falls back to default")
}

func TestNormalizeConfigOverridesAndTiers(t *testing.T) {
	raw := json.RawMessage(`{
		"unit": "bag",
		"min": "2",
		"step": "0,5",
		"options": [
			{"type": "bulk", "label": "10+", "min_qty": 10, "max_qty": null, "unit_price": 1.5},
			{"type": "exact", "label": "Pack of 6", "qty": 6, "unit_price": 2},
			{"type": "bulk", "label": "5-9", "min_qty": "5", "max_qty": "9", "unit_price": 1.8},
			{"type": "exact", "id": "pair", "label": "Pair", "qty": 2, "unit_price": "2.4"},
			{"type": "exact", "label": "", "qty": 3, "unit_price": 1},
			{"type": "exact", "label": "Neg", "qty": 3, "unit_price": -1},
			{"type": "exact", "label": "Zero", "qty": 0, "unit_price": 1},
			{"type": "bulk", "label": "Inverted", "min_qty": 8, "max_qty": 4, "unit_price": 1},
			{"type": "bulk", "label": "Bad max", "min_qty": 1, "max_qty": "abc", "unit_price": 1},
			{"type": "flat", "label": "Unknown", "unit_price": 1},
			{"type": "exact", "label": "No price", "qty": 4},
			"garbage"
		]
	}`)
	cfg := pricing.NormalizeConfig(raw, pricing.Product{})
	require.Equal(t, "bag", cfg.Unit)
	require.Equal(t, 2.0, cfg.MinQty)
	require.Equal(t, 0.5, cfg.StepQty)
	require.Len(t, cfg.Tiers, 4)

	require.Equal(t, pricing.TierExact, cfg.Tiers[0].Kind)
	require.Equal(t, "pair", cfg.Tiers[0].ID)
	require.Equal(t, 2.4, cfg.Tiers[0].UnitPrice)
	require.Equal(t, pricing.TierExact, cfg.Tiers[1].Kind)
	require.Equal(t, "Pack of 6_6", cfg.Tiers[1].ID)

	require.Equal(t, pricing.TierBulk, cfg.Tiers[2].Kind)
	require.Equal(t, 5.0, cfg.Tiers[2].MinQty)
	require.NotNil(t, cfg.Tiers[2].MaxQty)
	require.Equal(t, 9.0, *cfg.Tiers[2].MaxQty)
	require.Equal(t, 10.0, cfg.Tiers[3].MinQty)
	require.Nil(t, cfg.Tiers[3].MaxQty)
}

func TestNormalizeConfigIgnoresInvalidRules(t *testing.T) {
	raw := json.RawMessage(`{"unit": "  ", "min": -2, "step": "x", "options": {"type": "exact"}}`)
	cfg := pricing.NormalizeConfig(raw, pricing.Product{IsWeight: true})
	require.Equal(t, "kg", cfg.Unit)
	require.Equal(t, 0.5, cfg.MinQty)
	require.Equal(t, 0.5, cfg.StepQty)
	require.Empty(t, cfg.Tiers)
}

func TestProductConfigUsesOnlineConfig(t *testing.T) {
	p := pricing.Product{OnlineConfig: json.RawMessage(`{"is_weight": true, "min": 0.25}`)}
	cfg := p.Config()
	require.True(t, cfg.IsWeight)
	require.Equal(t, 0.25, cfg.MinQty)
	require.Equal(t, 1.0, cfg.StepQty, "step default follows the product row")
}
