package checkout

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

// ErrNothingToCheckout is returned when no cart line can be sold.
var ErrNothingToCheckout = errors.New("checkout: no sellable lines")

// ProductSource loads catalog rows by id.
type ProductSource interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]pricing.Product, error)
}

// DiscountSource loads active discount rows by product id.
type DiscountSource interface {
	ActiveDiscounts(ctx context.Context, productIDs []string) ([]pricing.Discount, error)
}

// Quote is the display pricing of a cart.
type Quote struct {
	Lines       []pricing.LineQuote `json:"lines"`
	Totals      pricing.Totals      `json:"totals"`
	Summary     pricing.Summary     `json:"summary"`
	Unavailable []string            `json:"unavailable"`
	Currency    string              `json:"currency"`
}

// DraftItem is an order-ready line. Money is rounded to cents.
type DraftItem struct {
	ProductID   string  `json:"product_id"`
	ProductSlug string  `json:"product_slug"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	IsWeight    bool    `json:"is_weight"`
}

// Draft is the payload handed to order creation.
type Draft struct {
	Items       []DraftItem     `json:"items"`
	Summary     pricing.Summary `json:"summary"`
	Unavailable []string        `json:"unavailable,omitempty"`
	Currency    string          `json:"currency"`
}

// Service prices carts against current catalog data. Stored prices are never
// trusted.
type Service struct {
	Products  ProductSource
	Discounts DiscountSource
	TaxBps    int
	Currency  string
	Logger    zerolog.Logger
}

// Quote prices lines. Lookup failures degrade to missing products or no
// discounts and are logged; Quote itself never fails.
func (s *Service) Quote(ctx context.Context, lines []pricing.Line) Quote {
	ids := productIDs(lines)
	products := make(map[string]pricing.Product, len(ids))
	discounts := map[string]pricing.Discount{}
	if len(ids) > 0 && s.Products != nil {
		rows, err := s.Products.ProductsByIDs(ctx, ids)
		if err != nil {
			s.Logger.Warn().Err(err).Int("products", len(ids)).Msg("quote_products_unavailable")
		}
		for _, p := range rows {
			products[p.ID] = p
		}
	}
	if len(ids) > 0 && s.Discounts != nil {
		rows, err := s.Discounts.ActiveDiscounts(ctx, ids)
		if err != nil {
			s.Logger.Warn().Err(err).Int("products", len(ids)).Msg("quote_discounts_unavailable")
		} else {
			discounts = pricing.WinningDiscounts(rows)
		}
	}

	totals, quotes, skipped := pricing.ComputeTotals(lines, products, discounts)
	if skipped == nil {
		skipped = []string{}
	}
	return Quote{
		Lines:       quotes,
		Totals:      totals,
		Summary:     pricing.Summarize(totals, s.TaxBps),
		Unavailable: skipped,
		Currency:    s.currency(),
	}
}

// Draft builds order line items from a quote of lines.
func (s *Service) Draft(ctx context.Context, lines []pricing.Line) (Draft, error) {
	q := s.Quote(ctx, lines)
	if len(q.Lines) == 0 {
		return Draft{}, ErrNothingToCheckout
	}
	items := make([]DraftItem, 0, len(q.Lines))
	for _, l := range q.Lines {
		items = append(items, DraftItem{
			ProductID:   l.ProductID,
			ProductSlug: l.Slug,
			Qty:         l.NormalizedQty,
			UnitPrice:   pricing.RoundMoney(l.UnitPrice),
			LineTotal:   pricing.RoundMoney(l.LineTotal),
			IsWeight:    l.IsWeight,
		})
	}
	return Draft{
		Items:       items,
		Summary:     q.Summary,
		Unavailable: q.Unavailable,
		Currency:    q.Currency,
	}, nil
}

func (s *Service) currency() string {
	if c := strings.TrimSpace(s.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return "USD"
}

func productIDs(lines []pricing.Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			continue
		}
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	sort.Strings(ids)
	return ids
}
