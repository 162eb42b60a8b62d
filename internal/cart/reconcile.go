package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/matomart-api/internal/events"
	"github.com/noah-isme/matomart-api/internal/obs"
	"github.com/noah-isme/matomart-api/internal/pricing"
	"github.com/noah-isme/matomart-api/internal/stock"
)

const defaultReconcileConcurrency = 8

const (
	messageRemoved  = "Out of stock: removed from cart"
	messageAdjusted = "Not enough stock: quantity adjusted"
)

// StockReader returns a stock reading issued no earlier than notBefore.
type StockReader interface {
	Fresh(ctx context.Context, productID string, notBefore time.Time) (int, error)
}

// Correction records a line changed because of insufficient stock.
type Correction struct {
	CartID    string       `json:"cartId"`
	ProductID string       `json:"productId"`
	Action    stock.Action `json:"action"`
	From      float64      `json:"from"`
	To        float64      `json:"to"`
	Stock     int          `json:"stock"`
	Message   string       `json:"message"`
}

// Reconciler checks every product in a cart against current stock and
// removes or clamps lines that cannot be fulfilled.
type Reconciler struct {
	Store       *Store
	Stock       StockReader
	Bus         *events.Bus
	Concurrency int
	Logger      zerolog.Logger
}

// Reconcile reads stock for each distinct product in the cart, issued at or
// after notBefore, then applies the corrections to the cart as it is stored at
// that moment. Running it again without new stock changes is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, cartID string, notBefore time.Time) ([]Correction, error) {
	lines, err := r.Store.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	readings, err := r.readStock(ctx, lines, notBefore)
	if err != nil {
		return nil, err
	}

	var corrections []Correction
	_, err = r.Store.Mutate(ctx, cartID, func(current []pricing.Line) ([]pricing.Line, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		corrections = corrections[:0]
		next := current[:0]
		for _, line := range current {
			qty, ok := readings[line.ProductID]
			if !ok {
				next = append(next, line)
				continue
			}
			d := stock.Decide(line.Qty, qty)
			switch d.Action {
			case stock.ActionRemove:
				corrections = append(corrections, newCorrection(cartID, line.ProductID, d, qty))
				continue
			case stock.ActionClamp:
				corrections = append(corrections, newCorrection(cartID, line.ProductID, d, qty))
				line.Qty = d.To
			}
			next = append(next, line)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range corrections {
		r.announce(ctx, c)
	}
	return corrections, nil
}

func (r *Reconciler) readStock(ctx context.Context, lines []pricing.Line, notBefore time.Time) (map[string]int, error) {
	limit := r.Concurrency
	if limit <= 0 {
		limit = defaultReconcileConcurrency
	}
	var (
		mu       sync.Mutex
		readings = make(map[string]int, len(lines))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		productID := line.ProductID
		if _, dup := seen[productID]; dup {
			continue
		}
		seen[productID] = struct{}{}
		g.Go(func() error {
			qty, err := r.Stock.Fresh(gctx, productID, notBefore)
			if err != nil {
				return fmt.Errorf("cart: stock for %s: %w", productID, err)
			}
			mu.Lock()
			readings[productID] = qty
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *Reconciler) announce(ctx context.Context, c Correction) {
	obs.ObserveCartCorrection(string(c.Action))
	r.Logger.Info().
		Str("cart_id", c.CartID).
		Str("product_id", c.ProductID).
		Str("action", string(c.Action)).
		Float64("from", c.From).
		Float64("to", c.To).
		Int("stock", c.Stock).
		Msg("cart_line_corrected")
	if r.Bus == nil {
		return
	}
	topic := events.TopicCartQtyAdjusted
	if c.Action == stock.ActionRemove {
		topic = events.TopicCartLineRemoved
	}
	if _, err := r.Bus.Emit(ctx, topic, c.CartID, c); err != nil {
		r.Logger.Warn().Err(err).Str("cart_id", c.CartID).Str("topic", topic).Msg("cart_correction_notify_failed")
	}
}

func newCorrection(cartID, productID string, d stock.Decision, qty int) Correction {
	msg := messageAdjusted
	if d.Action == stock.ActionRemove {
		msg = messageRemoved
	}
	return Correction{
		CartID:    cartID,
		ProductID: productID,
		Action:    d.Action,
		From:      d.From,
		To:        d.To,
		Stock:     qty,
		Message:   msg,
	}
}
