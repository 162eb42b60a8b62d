package stock

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/matomart-api/internal/resilience"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingSource struct {
	calls atomic.Int32
	fn    func(call int32) (float64, error)
}

func (s *countingSource) Stock(_ context.Context, _ string) (float64, error) {
	n := s.calls.Add(1)
	return s.fn(n)
}

func newTestCache(t *testing.T, src Source, clock *testClock, policy FailurePolicy) *Cache {
	t.Helper()
	c, err := NewCache(src, Options{TTL: 30 * time.Second, Size: 16, Policy: policy, Now: clock.Now})
	require.NoError(t, err)
	return c
}

func TestCacheCoalescesConcurrentFetches(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc(func(ctx context.Context, _ string) (float64, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 12, nil
	})
	cache := newTestCache(t, src, newTestClock(), PolicyZero)
	ctx := context.Background()

	results := make(chan int, 8)
	go func() {
		qty, _ := cache.Get(ctx, "p1")
		results <- qty
	}()
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qty, _ := cache.Get(ctx, "p1")
			results <- qty
		}()
	}
	close(release)
	wg.Wait()

	for i := 0; i < 8; i++ {
		require.Equal(t, 12, <-results)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestCacheServesEntriesWithinTTL(t *testing.T) {
	clock := newTestClock()
	src := &countingSource{fn: func(call int32) (float64, error) { return float64(call * 10), nil }}
	cache := newTestCache(t, src, clock, PolicyZero)
	ctx := context.Background()

	qty, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, qty)

	clock.Advance(29 * time.Second)
	qty, err = cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, qty)
	require.Equal(t, int32(1), src.calls.Load())

	clock.Advance(time.Second)
	qty, err = cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 20, qty)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	src := &countingSource{fn: func(call int32) (float64, error) { return float64(10 - call), nil }}
	cache := newTestCache(t, src, newTestClock(), PolicyZero)
	ctx := context.Background()

	qty, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 9, qty)

	cache.Invalidate("p1")
	_, ok := cache.Peek("p1")
	require.False(t, ok)

	qty, err = cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 8, qty)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestCacheCachesFailuresAsZero(t *testing.T) {
	clock := newTestClock()
	src := &countingSource{fn: func(int32) (float64, error) { return 0, errors.New("db down") }}
	cache := newTestCache(t, src, clock, PolicyZero)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		qty, err := cache.Get(ctx, "p1")
		require.NoError(t, err)
		require.Zero(t, qty)
	}
	require.Equal(t, int32(1), src.calls.Load())

	entry, ok := cache.Peek("p1")
	require.True(t, ok)
	require.True(t, entry.Failed)

	clock.Advance(31 * time.Second)
	_, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestCacheLastKnownPolicy(t *testing.T) {
	clock := newTestClock()
	src := &countingSource{fn: func(call int32) (float64, error) {
		if call == 1 {
			return 7, nil
		}
		return 0, errors.New("timeout")
	}}
	cache := newTestCache(t, src, clock, PolicyLastKnown)
	ctx := context.Background()

	qty, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 7, qty)

	clock.Advance(time.Minute)
	qty, err = cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 7, qty)

	entry, ok := cache.Peek("p1")
	require.True(t, ok)
	require.True(t, entry.Failed)

	qty, err = cache.Get(ctx, "p2")
	require.NoError(t, err)
	require.Zero(t, qty, "no previous reading falls back to zero")
}

func TestFreshRefetchesEntriesOlderThanNotBefore(t *testing.T) {
	clock := newTestClock()
	src := &countingSource{fn: func(call int32) (float64, error) { return float64(10 - call), nil }}
	cache := newTestCache(t, src, clock, PolicyZero)
	ctx := context.Background()

	first := clock.Now()
	qty, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 9, qty)

	qty, err = cache.Fresh(ctx, "p1", first)
	require.NoError(t, err)
	require.Equal(t, 9, qty, "reading issued at notBefore is fresh enough")

	clock.Advance(time.Second)
	mutation := clock.Now()
	qty, err = cache.Fresh(ctx, "p1", mutation)
	require.NoError(t, err)
	require.Equal(t, 8, qty)
	require.Equal(t, int32(2), src.calls.Load())

	qty, err = cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 8, qty, "display reads see the newer reading")
}

func TestFreshReusesFailedEntryWithinTTL(t *testing.T) {
	clock := newTestClock()
	src := &countingSource{fn: func(int32) (float64, error) { return 0, errors.New("boom") }}
	cache := newTestCache(t, src, clock, PolicyZero)
	ctx := context.Background()

	_, err := cache.Get(ctx, "p1")
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	qty, err := cache.Fresh(ctx, "p1", clock.Now())
	require.NoError(t, err)
	require.Zero(t, qty)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestCacheClampsRawStock(t *testing.T) {
	cases := map[string]struct {
		raw  float64
		want int
	}{
		"negative":   {raw: -3, want: 0},
		"fractional": {raw: 2.9, want: 2},
		"nan":        {raw: math.NaN(), want: 0},
		"whole":      {raw: 14, want: 14},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := SourceFunc(func(context.Context, string) (float64, error) { return tc.raw, nil })
			cache := newTestCache(t, src, newTestClock(), PolicyZero)
			qty, err := cache.Get(context.Background(), "p1")
			require.NoError(t, err)
			require.Equal(t, tc.want, qty)
		})
	}
}

func TestCacheCallerCancellationDoesNotPoisonFetch(t *testing.T) {
	release := make(chan struct{})
	src := SourceFunc(func(ctx context.Context, _ string) (float64, error) {
		select {
		case <-release:
			return 4, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	cache := newTestCache(t, src, newTestClock(), PolicyZero)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.Get(ctx, "p1")
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	qty, err := cache.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 4, qty)
}

func TestGuardedSourceShortCircuitsWhenOpen(t *testing.T) {
	src := &countingSource{fn: func(int32) (float64, error) { return 0, errors.New("refused") }}
	guarded := GuardedSource{Source: src, Breaker: resilience.NewBreaker(1, 1, time.Minute)}
	ctx := context.Background()

	_, err := guarded.Stock(ctx, "p1")
	require.EqualError(t, err, "refused")

	_, err = guarded.Stock(ctx, "p1")
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestParsePolicy(t *testing.T) {
	require.Equal(t, PolicyLastKnown, ParsePolicy(" LAST_KNOWN "))
	require.Equal(t, PolicyZero, ParsePolicy("zero"))
	require.Equal(t, PolicyZero, ParsePolicy("bogus"))
}
