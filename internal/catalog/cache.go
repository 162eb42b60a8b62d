package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON payloads in Redis with a fixed TTL.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// MGetRaw returns the raw payloads for keys; missing keys map to nil.
func (c *Cache) MGetRaw(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if !c.enabled() || len(keys) == 0 {
		return out, nil
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return out, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// SetManyJSON stores every entry of values in one pipeline.
func (c *Cache) SetManyJSON(ctx context.Context, values map[string]any) error {
	if !c.enabled() || len(values) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for key, v := range values {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			p.Set(ctx, key, data, c.ttl)
		}
		return nil
	})
	return err
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
