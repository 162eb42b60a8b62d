package stock

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/matomart-api/internal/obs"
)

const (
	defaultTTL          = 30 * time.Second
	defaultSize         = 1024
	defaultFetchTimeout = 5 * time.Second
)

// Source reports the live inventory count for a product.
type Source interface {
	Stock(ctx context.Context, productID string) (float64, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, productID string) (float64, error)

// Stock implements Source.
func (f SourceFunc) Stock(ctx context.Context, productID string) (float64, error) {
	return f(ctx, productID)
}

// FailurePolicy decides the stock value recorded when a fetch fails.
type FailurePolicy string

const (
	// PolicyZero treats an unreadable product as out of stock.
	PolicyZero FailurePolicy = "zero"
	// PolicyLastKnown reuses the last successful reading, or zero without one.
	PolicyLastKnown FailurePolicy = "last_known"
)

// ParsePolicy maps configuration text to a policy, defaulting to PolicyZero.
func ParsePolicy(raw string) FailurePolicy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PolicyLastKnown), "last-known", "lastknown":
		return PolicyLastKnown
	default:
		return PolicyZero
	}
}

// Options configures a Cache.
type Options struct {
	TTL          time.Duration
	Size         int
	Policy       FailurePolicy
	FetchTimeout time.Duration
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Entry is a cached stock reading. FetchedAt is the time the fetch was issued.
type Entry struct {
	ProductID string
	Qty       int
	FetchedAt time.Time
	Failed    bool

	lastGood int
	hasGood  bool
}

type call struct {
	done      chan struct{}
	startedAt time.Time
	entry     Entry
}

// Cache is a TTL cache over a Source that coalesces concurrent fetches for the
// same product into one backend request.
type Cache struct {
	src          Source
	ttl          time.Duration
	policy       FailurePolicy
	fetchTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger
	tracer       trace.Tracer

	mu       sync.Mutex
	entries  *lru.Cache[string, Entry]
	inflight map[string]*call
}

// NewCache constructs a Cache reading from src.
func NewCache(src Source, opts Options) (*Cache, error) {
	if src == nil {
		return nil, fmt.Errorf("stock: source is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Policy == "" {
		opts.Policy = PolicyZero
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	entries, err := lru.New[string, Entry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("stock: create entry table: %w", err)
	}
	return &Cache{
		src:          src,
		ttl:          opts.TTL,
		policy:       opts.Policy,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		logger:       opts.Logger,
		tracer:       otel.Tracer("matomart/stock"),
		entries:      entries,
		inflight:     make(map[string]*call),
	}, nil
}

// Get returns the stock for productID, serving unexpired entries from memory.
// It only fails when ctx is done before a reading is available.
func (c *Cache) Get(ctx context.Context, productID string) (int, error) {
	c.mu.Lock()
	if e, ok := c.entries.Get(productID); ok && c.live(e) {
		c.mu.Unlock()
		obs.ObserveStockLookup("hit")
		return e.Qty, nil
	}
	cl := c.callLocked(ctx, productID, time.Time{})
	c.mu.Unlock()
	return c.wait(ctx, cl)
}

// Fresh returns a reading issued at or after notBefore. Failed readings still
// inside the TTL are reused so a failing backend is not retried per call.
func (c *Cache) Fresh(ctx context.Context, productID string, notBefore time.Time) (int, error) {
	c.mu.Lock()
	if e, ok := c.entries.Get(productID); ok && c.live(e) && (e.Failed || !e.FetchedAt.Before(notBefore)) {
		c.mu.Unlock()
		obs.ObserveStockLookup("hit")
		return e.Qty, nil
	}
	cl := c.callLocked(ctx, productID, notBefore)
	c.mu.Unlock()
	return c.wait(ctx, cl)
}

// Peek returns the cached entry for productID without fetching.
func (c *Cache) Peek(productID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(productID)
	if !ok || !c.live(e) {
		return Entry{}, false
	}
	return e, true
}

// Invalidate drops the cached entry for productID.
func (c *Cache) Invalidate(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(productID)
}

func (c *Cache) live(e Entry) bool {
	return c.now().Sub(e.FetchedAt) < c.ttl
}

// callLocked joins an in-flight fetch started at or after notBefore, or starts
// a new one detached from the caller's cancellation. Callers must hold c.mu.
func (c *Cache) callLocked(ctx context.Context, productID string, notBefore time.Time) *call {
	if cl, ok := c.inflight[productID]; ok && !cl.startedAt.Before(notBefore) {
		obs.ObserveStockLookup("joined")
		return cl
	}
	obs.ObserveStockLookup("miss")
	cl := &call{done: make(chan struct{}), startedAt: c.now()}
	c.inflight[productID] = cl
	go c.fetch(context.WithoutCancel(ctx), productID, cl)
	return cl
}

func (c *Cache) wait(ctx context.Context, cl *call) (int, error) {
	select {
	case <-cl.done:
		return cl.entry.Qty, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Cache) fetch(parent context.Context, productID string, cl *call) {
	ctx, cancel := context.WithTimeout(parent, c.fetchTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "stock.fetch", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	start := time.Now()
	raw, err := c.src.Stock(ctx, productID)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	c.mu.Lock()
	prev, hadPrev := c.entries.Peek(productID)
	entry := Entry{ProductID: productID, FetchedAt: cl.startedAt}
	if hadPrev {
		entry.lastGood, entry.hasGood = prev.lastGood, prev.hasGood
	}
	if err != nil {
		entry.Failed = true
		if c.policy == PolicyLastKnown && entry.hasGood {
			entry.Qty = entry.lastGood
		}
	} else {
		entry.Qty = clampStock(raw)
		entry.lastGood, entry.hasGood = entry.Qty, true
	}
	if !hadPrev || !prev.FetchedAt.After(cl.startedAt) {
		c.entries.Add(productID, entry)
	}
	if c.inflight[productID] == cl {
		delete(c.inflight, productID)
	}
	cl.entry = entry
	c.mu.Unlock()
	close(cl.done)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.ObserveStockFetch("error", elapsed)
		c.logger.Warn().Err(err).
			Str("product_id", productID).
			Str("policy", string(c.policy)).
			Int("qty", entry.Qty).
			Msg("stock_fetch_failed")
		return
	}
	span.SetAttributes(attribute.Int("stock.qty", entry.Qty))
	obs.ObserveStockFetch("ok", elapsed)
}

// clampStock turns a raw inventory value into a sellable whole count.
func clampStock(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if math.IsInf(v, 1) || v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(v))
}
