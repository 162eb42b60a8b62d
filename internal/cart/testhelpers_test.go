package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/matomart-api/internal/pricing"
)

const (
	appleID  = "6f0a3c52-1a8e-4c55-9d7b-2d2e1f6a0001"
	rice5kID = "6f0a3c52-1a8e-4c55-9d7b-2d2e1f6a0002"
	offID    = "6f0a3c52-1a8e-4c55-9d7b-2d2e1f6a0003"
	testCart = "0b8a1d4e-7d61-4f3a-9a51-5a4f0c2e9f10"
)

type stubProducts map[string]pricing.Product

func (s stubProducts) ProductsByIDs(_ context.Context, ids []string) ([]pricing.Product, error) {
	out := make([]pricing.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func testCatalog() stubProducts {
	return stubProducts{
		appleID: {ID: appleID, Slug: "apple", Price: 2, IsOnline: true},
		rice5kID: {
			ID: rice5kID, Slug: "rice", Price: 3, IsWeight: true, IsOnline: true,
			OnlineConfig: []byte(`{"unit":"kg","min":0.5,"step":0.5}`),
		},
		offID: {ID: offID, Slug: "retired", Price: 1, IsOnline: false},
	}
}

type stubStock struct {
	mu     sync.Mutex
	levels map[string]int
	calls  atomic.Int32
	err    error
}

func newStubStock(levels map[string]int) *stubStock {
	return &stubStock{levels: levels}
}

func (s *stubStock) Fresh(ctx context.Context, productID string, _ time.Time) (int, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[productID], nil
}

func (s *stubStock) set(productID string, qty int) {
	s.mu.Lock()
	s.levels[productID] = qty
	s.mu.Unlock()
}

func newTestStore() *Store {
	return NewStore(NewMemoryKV(), StoreOptions{})
}

func ptr(v float64) *float64 { return &v }
