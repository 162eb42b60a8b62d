package pricing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

func TestNormalizeQuantity(t *testing.T) {
	weight := pricing.Config{IsWeight: true, MinQty: 0.5, StepQty: 0.5}
	count := pricing.Config{MinQty: 1, StepQty: 1}
	packs := pricing.Config{MinQty: 2, StepQty: 2}

	cases := []struct {
		name string
		cfg  pricing.Config
		in   float64
		want float64
	}{
		{"weight snaps down", weight, 4.7, 4.5},
		{"weight snaps up", weight, 4.75, 5},
		{"weight below min", weight, 0.1, 0.5},
		{"weight NaN", weight, math.NaN(), 0.5},
		{"weight infinite", weight, math.Inf(1), 0.5},
		{"count rounds", count, 2.4, 2},
		{"count negative", count, -3, 1},
		{"packs snap", packs, 5, 6},
		{"packs keep min", packs, 1, 2},
		{"no upper bound", count, 1e6, 1e6},
		{"fractional count min", pricing.Config{MinQty: 0.4, StepQty: 1}, 0.4, 1},
		{"count min below half step", pricing.Config{MinQty: 0.5, StepQty: 2}, 0.54, 2},
		{"count min off the step grid", pricing.Config{MinQty: 1, StepQty: 3}, 0, 3},
		{"weight min off the step grid", pricing.Config{IsWeight: true, MinQty: 0.25, StepQty: 0.2}, 0.1, 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, pricing.NormalizeQuantity(tc.in, tc.cfg))
		})
	}
}

func TestNormalizeQuantityInvariants(t *testing.T) {
	configs := []pricing.Config{
		{IsWeight: true, MinQty: 0.5, StepQty: 0.5},
		{IsWeight: true, MinQty: 0.25, StepQty: 0.1},
		{IsWeight: true, MinQty: 1, StepQty: 0.25},
		{MinQty: 1, StepQty: 1},
		{MinQty: 3, StepQty: 3},
		{MinQty: 0, StepQty: 0},
		{MinQty: 0.4, StepQty: 1},
		{MinQty: 0.5, StepQty: 2},
		{MinQty: 1, StepQty: 3},
		{MinQty: 2.5, StepQty: 1.5},
		{IsWeight: true, MinQty: 0.25, StepQty: 0.2},
	}
	for _, cfg := range configs {
		safe := cfg.Sanitized()
		for x := -2.0; x < 25; x += 0.137 {
			once := pricing.NormalizeQuantity(x, cfg)
			twice := pricing.NormalizeQuantity(once, cfg)
			require.Equal(t, once, twice, "idempotent for %v at %v", cfg, x)
			require.GreaterOrEqual(t, once, safe.MinQty)
			steps := once / safe.StepQty
			require.InDelta(t, math.Round(steps), steps, 1e-6, "multiple of step for %v at %v", cfg, x)
		}
	}
}
