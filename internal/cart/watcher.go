package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Watcher reconciles a cart in the background every time the store reports a
// change. After Close, pending runs are cancelled and their results dropped.
type Watcher struct {
	rec      *Reconciler
	logger   zerolog.Logger
	onResult func(cartID string, corrections []Correction)

	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool
	unsub  func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithResultHandler registers fn to receive the corrections of each run that
// finished while the watcher was alive.
func WithResultHandler(fn func(cartID string, corrections []Correction)) WatcherOption {
	return func(w *Watcher) { w.onResult = fn }
}

// WithWatcherLogger sets the logger for failed runs.
func WithWatcherLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher subscribes to store and starts reconciling changed carts.
func NewWatcher(store *Store, rec *Reconciler, opts ...WatcherOption) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{rec: rec, ctx: ctx, cancel: cancel, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	w.alive.Store(true)
	w.unsub = store.Subscribe(w.handle)
	return w
}

func (w *Watcher) handle(change Change) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		corrections, err := w.rec.Reconcile(w.ctx, change.CartID, change.At)
		if !w.alive.Load() {
			return
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.Warn().Err(err).Str("cart_id", change.CartID).Msg("cart_reconcile_failed")
			}
			return
		}
		if w.onResult != nil && len(corrections) > 0 {
			w.onResult(change.CartID, corrections)
		}
	}()
}

// Alive reports whether the watcher still accepts results.
func (w *Watcher) Alive() bool {
	return w.alive.Load()
}

// Close stops the watcher and waits for in-flight runs to return.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.alive.Store(false)
	w.unsub()
	w.cancel()
	w.wg.Wait()
}
