package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/matomart-api/internal/lock"
	"github.com/noah-isme/matomart-api/internal/obs"
	"github.com/noah-isme/matomart-api/internal/pricing"
)

const (
	defaultKeyPrefix = "matomart_cart"
	defaultCartTTL   = 7 * 24 * time.Hour
	mutateLockTTL    = 10 * time.Second
)

// Change is delivered to subscribers after a cart was persisted with
// different contents.
type Change struct {
	CartID string
	Lines  []pricing.Line
	At     time.Time
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Prefix string
	TTL    time.Duration
	Locker lock.Locker
	Now    func() time.Time
	Logger zerolog.Logger
}

// Store owns persisted carts. Mutations for one cart id are serialised and
// subscribers are told about every change that was written.
type Store struct {
	kv     KV
	prefix string
	ttl    time.Duration
	locker lock.Locker
	now    func() time.Time
	logger zerolog.Logger

	subMu   sync.RWMutex
	subs    map[uint64]func(Change)
	nextSub uint64
}

// NewStore constructs a Store over kv.
func NewStore(kv KV, opts StoreOptions) *Store {
	if strings.TrimSpace(opts.Prefix) == "" {
		opts.Prefix = defaultKeyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultCartTTL
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewKeyed()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		kv:     kv,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		locker: opts.Locker,
		now:    opts.Now,
		logger: opts.Logger,
		subs:   make(map[uint64]func(Change)),
	}
}

// Key returns the storage key for cartID.
func (s *Store) Key(cartID string) string {
	return s.prefix + ":" + cartID
}

// Get loads the lines of a cart. Unknown carts are empty.
func (s *Store) Get(ctx context.Context, cartID string) ([]pricing.Line, error) {
	return s.load(ctx, cartID)
}

// Mutate applies fn to the current lines and persists the result when it
// differs. fn receives a copy it may modify. The returned lines are the
// stored state after the call.
func (s *Store) Mutate(ctx context.Context, cartID string, fn func([]pricing.Line) ([]pricing.Line, error)) ([]pricing.Line, error) {
	var (
		result  []pricing.Line
		changed bool
		at      time.Time
	)
	err := s.locker.WithLock(ctx, "cart:"+cartID, mutateLockTTL, func(ctx context.Context) error {
		current, err := s.load(ctx, cartID)
		if err != nil {
			return err
		}
		next, err := fn(cloneLines(current))
		if err != nil {
			result = current
			return err
		}
		next = compact(next)
		if equalLines(current, next) {
			result = current
			return nil
		}
		if err := s.persist(ctx, cartID, next); err != nil {
			result = current
			return err
		}
		result, changed, at = next, true, s.now()
		return nil
	})
	if err != nil {
		return result, err
	}
	if changed {
		obs.ObserveCartMutation()
		s.publish(Change{CartID: cartID, Lines: cloneLines(result), At: at})
	}
	return result, nil
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) publish(change Change) {
	s.subMu.RLock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(change)
	}
}

func (s *Store) load(ctx context.Context, cartID string) ([]pricing.Line, error) {
	data, ok, err := s.kv.Load(ctx, s.Key(cartID))
	if err != nil {
		return nil, fmt.Errorf("cart: load %s: %w", cartID, err)
	}
	if !ok {
		return []pricing.Line{}, nil
	}
	var lines []pricing.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		s.logger.Warn().Err(err).Str("cart_id", cartID).Msg("cart_payload_corrupt")
		return []pricing.Line{}, nil
	}
	return dedupe(lines), nil
}

func (s *Store) persist(ctx context.Context, cartID string, lines []pricing.Line) error {
	key := s.Key(cartID)
	if len(lines) == 0 {
		if err := s.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("cart: delete %s: %w", cartID, err)
		}
		return nil
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("cart: encode %s: %w", cartID, err)
	}
	if err := s.kv.Save(ctx, key, data, s.ttl); err != nil {
		return fmt.Errorf("cart: save %s: %w", cartID, err)
	}
	return nil
}

// dedupe keeps the first line per product id and drops lines without one.
func dedupe(lines []pricing.Line) []pricing.Line {
	out := make([]pricing.Line, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		l.ProductID = strings.TrimSpace(l.ProductID)
		if l.ProductID == "" {
			continue
		}
		if _, dup := seen[l.ProductID]; dup {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l)
	}
	return out
}

// compact drops lines that cannot be stored: no product or no positive qty.
func compact(lines []pricing.Line) []pricing.Line {
	lines = dedupe(lines)
	out := lines[:0]
	for _, l := range lines {
		if math.IsNaN(l.Qty) || math.IsInf(l.Qty, 0) || l.Qty <= 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

func cloneLines(lines []pricing.Line) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, l := range lines {
		if l.VariantID != nil {
			v := *l.VariantID
			l.VariantID = &v
		}
		out[i] = l
	}
	return out
}

func equalLines(a, b []pricing.Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID || a[i].Qty != b[i].Qty {
			return false
		}
		av, bv := a[i].VariantID, b[i].VariantID
		if (av == nil) != (bv == nil) || (av != nil && *av != *bv) {
			return false
		}
	}
	return true
}

func findLine(lines []pricing.Line, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
