package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the byte store that persists serialised carts.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisKV keeps carts in Redis with a sliding expiry.
type RedisKV struct {
	Client redis.Cmdable
}

// Load implements KV.
func (r RedisKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if r.Client == nil {
		return nil, false, errors.New("cart: redis client not configured")
	}
	data, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Save implements KV.
func (r RedisKV) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if r.Client == nil {
		return errors.New("cart: redis client not configured")
	}
	return r.Client.Set(ctx, key, data, ttl).Err()
}

// Delete implements KV.
func (r RedisKV) Delete(ctx context.Context, key string) error {
	if r.Client == nil {
		return errors.New("cart: redis client not configured")
	}
	return r.Client.Del(ctx, key).Err()
}

type memItem struct {
	data    []byte
	expires time.Time
}

// MemoryKV is a process-local KV used when Redis is not configured.
type MemoryKV struct {
	Now func() time.Time

	mu    sync.Mutex
	items map[string]memItem
}

// NewMemoryKV constructs an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]memItem)}
}

func (m *MemoryKV) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Load implements KV.
func (m *MemoryKV) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), item.data...), true, nil
}

// Save implements KV.
func (m *MemoryKV) Save(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]memItem)
	}
	item := memItem{data: append([]byte(nil), data...)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
