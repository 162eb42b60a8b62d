package stock

import (
	"context"

	"github.com/noah-isme/matomart-api/internal/resilience"
)

// GuardedSource fronts a Source with a circuit breaker. While the breaker is
// open lookups fail immediately with resilience.ErrOpenCircuit and the cache
// applies its failure policy.
type GuardedSource struct {
	Source  Source
	Breaker *resilience.Breaker
}

// Stock implements Source.
func (g GuardedSource) Stock(ctx context.Context, productID string) (float64, error) {
	if g.Breaker == nil {
		return g.Source.Stock(ctx, productID)
	}
	var qty float64
	err := g.Breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := g.Source.Stock(ctx, productID)
		qty = v
		return err
	})
	if err != nil {
		return 0, err
	}
	return qty, nil
}
