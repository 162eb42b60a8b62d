package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. The API flips it off when draining for shutdown.
func SetReady(v bool) { ready.Store(v) }

// Check is a named dependency probe. Optional checks are reported but never
// fail readiness.
type Check struct {
	Name     string
	Timeout  time.Duration
	Optional bool
	Probe    func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
	// Info adds informational fields such as the stock breaker state.
	Info func() map[string]string
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := ready.Load()
	if !healthy {
		status["server"] = "draining"
	}
	for _, c := range h.Checks {
		result := "ok"
		if err := c.run(r.Context()); err != nil {
			result = err.Error()
			if !c.Optional {
				healthy = false
			}
		}
		status[c.Name] = result
	}
	if h.Info != nil {
		for k, v := range h.Info() {
			status[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (c Check) run(parent context.Context) error {
	if c.Probe == nil {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return c.Probe(ctx)
}
