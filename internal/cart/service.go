package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

var (
	// ErrProductNotFound indicates the product is not in the catalog.
	ErrProductNotFound = errors.New("cart: product not found")
	// ErrProductOffline indicates the product exists but is not sold online.
	ErrProductOffline = errors.New("cart: product not available online")
	// ErrInvalidInput is returned for blank identifiers.
	ErrInvalidInput = errors.New("cart: invalid input")
)

// ProductLookup resolves catalog rows for pricing.
type ProductLookup interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]pricing.Product, error)
}

// Service implements shopper cart operations. Every stored quantity goes
// through the product's quantity rules.
type Service struct {
	Store    *Store
	Products ProductLookup
}

// Lines returns the stored lines of a cart.
func (s *Service) Lines(ctx context.Context, cartID string) ([]pricing.Line, error) {
	if strings.TrimSpace(cartID) == "" {
		return nil, ErrInvalidInput
	}
	return s.Store.Get(ctx, cartID)
}

// Add puts a product in the cart. A new line starts at the requested quantity
// or the product minimum; an existing line grows by the requested quantity or
// one step.
func (s *Service) Add(ctx context.Context, cartID, productID string, qty *float64) ([]pricing.Line, error) {
	cfg, err := s.sellableConfig(ctx, cartID, productID)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Sanitized()
	return s.Store.Mutate(ctx, cartID, func(lines []pricing.Line) ([]pricing.Line, error) {
		idx := findLine(lines, productID)
		if idx == -1 {
			start := cfg.MinQty
			if qty != nil {
				start = *qty
			}
			return append(lines, pricing.Line{ProductID: productID, Qty: pricing.NormalizeQuantity(start, cfg)}), nil
		}
		inc := cfg.StepQty
		if qty != nil && finitePositive(*qty) {
			inc = *qty
		}
		lines[idx].Qty = pricing.NormalizeQuantity(lines[idx].Qty+inc, cfg)
		return lines, nil
	})
}

// SetQty replaces the quantity of a line. Zero, negative or non-finite
// quantities remove it.
func (s *Service) SetQty(ctx context.Context, cartID, productID string, qty float64) ([]pricing.Line, error) {
	if !finitePositive(qty) {
		return s.Remove(ctx, cartID, productID)
	}
	cfg, err := s.sellableConfig(ctx, cartID, productID)
	if err != nil {
		return nil, err
	}
	return s.Store.Mutate(ctx, cartID, func(lines []pricing.Line) ([]pricing.Line, error) {
		normalized := pricing.NormalizeQuantity(qty, cfg)
		if idx := findLine(lines, productID); idx >= 0 {
			lines[idx].Qty = normalized
			return lines, nil
		}
		return append(lines, pricing.Line{ProductID: productID, Qty: normalized}), nil
	})
}

// Remove drops the line for productID.
func (s *Service) Remove(ctx context.Context, cartID, productID string) ([]pricing.Line, error) {
	if strings.TrimSpace(cartID) == "" || strings.TrimSpace(productID) == "" {
		return nil, ErrInvalidInput
	}
	return s.Store.Mutate(ctx, cartID, func(lines []pricing.Line) ([]pricing.Line, error) {
		if idx := findLine(lines, productID); idx >= 0 {
			lines = append(lines[:idx], lines[idx+1:]...)
		}
		return lines, nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	if strings.TrimSpace(cartID) == "" {
		return ErrInvalidInput
	}
	_, err := s.Store.Mutate(ctx, cartID, func([]pricing.Line) ([]pricing.Line, error) {
		return nil, nil
	})
	return err
}

func (s *Service) sellableConfig(ctx context.Context, cartID, productID string) (pricing.Config, error) {
	if strings.TrimSpace(cartID) == "" || strings.TrimSpace(productID) == "" {
		return pricing.Config{}, ErrInvalidInput
	}
	if s.Products == nil {
		return pricing.Config{}, errors.New("cart: product lookup not configured")
	}
	products, err := s.Products.ProductsByIDs(ctx, []string{productID})
	if err != nil {
		return pricing.Config{}, fmt.Errorf("cart: load product: %w", err)
	}
	for _, p := range products {
		if p.ID != productID {
			continue
		}
		if !p.IsOnline {
			return pricing.Config{}, ErrProductOffline
		}
		return p.Config(), nil
	}
	return pricing.Config{}, ErrProductNotFound
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
