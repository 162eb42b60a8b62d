package catalog

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

// ProductSource loads product rows by id.
type ProductSource interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]pricing.Product, error)
}

// CachedProducts is a read-through product cache keyed by product id. Cache
// failures are logged and served from the source.
type CachedProducts struct {
	Source ProductSource
	Cache  *Cache
	Prefix string
	Logger zerolog.Logger
}

func (c *CachedProducts) key(id string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "catalog:product:"
	}
	return prefix + id
}

// ProductsByIDs returns cached rows and loads the rest from the source.
func (c *CachedProducts) ProductsByIDs(ctx context.Context, ids []string) ([]pricing.Product, error) {
	if len(ids) == 0 {
		return []pricing.Product{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	raw, err := c.Cache.MGetRaw(ctx, keys)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("product_cache_read_failed")
	}

	out := make([]pricing.Product, 0, len(ids))
	var missing []string
	for i, id := range ids {
		if raw[i] != nil {
			var p pricing.Product
			if err := json.Unmarshal(raw[i], &p); err == nil {
				out = append(out, p)
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.Source.ProductsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]any, len(loaded))
	for _, p := range loaded {
		fill[c.key(p.ID)] = p
	}
	if err := c.Cache.SetManyJSON(ctx, fill); err != nil {
		c.Logger.Warn().Err(err).Msg("product_cache_write_failed")
	}
	return append(out, loaded...), nil
}

// Invalidate drops cached rows for ids.
func (c *CachedProducts) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	return c.Cache.Delete(ctx, keys...)
}
