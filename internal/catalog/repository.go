package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

// ErrRepositoryUnavailable indicates the database handle is not configured.
var ErrRepositoryUnavailable = errors.New("catalog: repository unavailable")

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads product, discount and stock rows from Postgres.
type Repository struct {
	DB Querier
}

const productColumns = `id::text, slug, COALESCE(price, 0)::float8, COALESCE(is_weight, false),
COALESCE(is_online, false), min_order_qty::float8, qty_step::float8, COALESCE(qty, 0)::float8, online_config`

// ProductsByIDs returns the rows for ids. Unknown ids are simply absent.
func (r *Repository) ProductsByIDs(ctx context.Context, ids []string) ([]pricing.Product, error) {
	if r == nil || r.DB == nil {
		return nil, ErrRepositoryUnavailable
	}
	if len(ids) == 0 {
		return []pricing.Product{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.Product, 0, len(ids))
	for rows.Next() {
		var (
			p      pricing.Product
			config []byte
		)
		if err := rows.Scan(&p.ID, &p.Slug, &p.Price, &p.IsWeight, &p.IsOnline, &p.MinOrderQty, &p.QtyStep, &p.Stock, &config); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if len(config) > 0 {
			p.OnlineConfig = config
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// ActiveDiscounts returns active discount rows for ids ordered by sort_order.
func (r *Repository) ActiveDiscounts(ctx context.Context, ids []string) ([]pricing.Discount, error) {
	if r == nil || r.DB == nil {
		return nil, ErrRepositoryUnavailable
	}
	if len(ids) == 0 {
		return []pricing.Discount{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT product_id::text, discount_price::float8, COALESCE(sort_order, 0)
FROM discounts
WHERE is_active = true AND discount_price IS NOT NULL AND product_id = ANY($1::uuid[])
ORDER BY sort_order ASC NULLS LAST`, ids)
	if err != nil {
		return nil, fmt.Errorf("query discounts: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.Discount, 0, len(ids))
	for rows.Next() {
		d := pricing.Discount{Active: true}
		if err := rows.Scan(&d.ProductID, &d.UnitPrice, &d.Priority); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discounts: %w", err)
	}
	return out, nil
}

// Stock reads the live inventory count of a product. A product without a row
// has no stock.
func (r *Repository) Stock(ctx context.Context, productID string) (float64, error) {
	if r == nil || r.DB == nil {
		return 0, ErrRepositoryUnavailable
	}
	var qty float64
	err := r.DB.QueryRow(ctx, `SELECT COALESCE(qty, 0)::float8 FROM products WHERE id = $1::uuid`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return 0, nil
		}
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return qty, nil
}
