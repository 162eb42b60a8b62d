package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Result describes the state of a key after one request was counted.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter counts a request against key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// ErrClosed is returned by Allow after Close.
var ErrClosed = errors.New("ratelimit: limiter closed")

// Fixed is a fixed-window limiter. It shares counters through Redis when a
// client is supplied and keeps them in process memory otherwise.
type Fixed struct {
	l atomic.Pointer[limiter.Limiter]
}

// NewFixed parses a rate in the "<limit>-<period>" format (for example
// "30-M") and builds the limiter.
func NewFixed(rate string, rdb *redis.Client, prefix string) (*Fixed, error) {
	parsed, err := limiter.NewRateFromFormatted(strings.TrimSpace(rate))
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: limiter.DefaultCleanUpInterval}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, opts)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	f := &Fixed{}
	f.l.Store(limiter.New(store, parsed))
	return f, nil
}

// Close releases the store. The memory store's sweeper stops once the store
// is no longer referenced.
func (f *Fixed) Close() {
	f.l.Store(nil)
}

// Allow implements Limiter.
func (f *Fixed) Allow(ctx context.Context, key string) (Result, error) {
	l := f.l.Load()
	if l == nil {
		return Result{Allowed: true}, ErrClosed
	}
	lctx, err := l.Get(ctx, key)
	if err != nil {
		return Result{Allowed: true}, err
	}
	return Result{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}
