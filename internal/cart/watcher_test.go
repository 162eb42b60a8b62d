package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

func TestWatcherReconcilesAfterMutation(t *testing.T) {
	store := newTestStore()
	svc := &Service{Store: store, Products: testCatalog()}
	stub := newStubStock(map[string]int{appleID: 3})
	rec := &Reconciler{Store: store, Stock: stub}

	var (
		mu      sync.Mutex
		results []Correction
	)
	w := NewWatcher(store, rec, WithResultHandler(func(_ string, c []Correction) {
		mu.Lock()
		results = append(results, c...)
		mu.Unlock()
	}))
	t.Cleanup(w.Close)

	_, err := svc.SetQty(context.Background(), "c1", appleID, 5)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lines, err := store.Get(context.Background(), "c1")
		return err == nil && len(lines) == 1 && lines[0].Qty == 3
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Equal(t, 3.0, results[0].To)
	mu.Unlock()
}

func TestWatcherIgnoresLateResultsAfterClose(t *testing.T) {
	store := newTestStore()
	seed(t, store, "c1", pricing.Line{ProductID: appleID, Qty: 1})

	started := make(chan struct{})
	var once sync.Once
	reader := stockReaderFunc(func(ctx context.Context, _ string, _ time.Time) (int, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return 0, ctx.Err()
	})
	rec := &Reconciler{Store: store, Stock: reader}

	called := false
	w := NewWatcher(store, rec, WithResultHandler(func(string, []Correction) { called = true }))

	_, err := store.Mutate(context.Background(), "c1", func(lines []pricing.Line) ([]pricing.Line, error) {
		lines[0].Qty = 4
		return lines, nil
	})
	require.NoError(t, err)
	<-started

	w.Close()
	require.False(t, w.Alive())
	require.False(t, called)

	lines, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, []pricing.Line{{ProductID: appleID, Qty: 4}}, lines, "cancelled run leaves the cart alone")

	_, err = store.Mutate(context.Background(), "c1", func([]pricing.Line) ([]pricing.Line, error) { return nil, nil })
	require.NoError(t, err)
	w.Close()
}
