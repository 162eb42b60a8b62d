package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// StockLookupsTotal counts stock cache lookups by outcome (hit, miss, joined).
	StockLookupsTotal *prometheus.CounterVec
	// StockFetchTotal counts stock backend fetches by result (ok, error).
	StockFetchTotal *prometheus.CounterVec
	// StockFetchLatency records stock backend fetch latency in milliseconds.
	StockFetchLatency *prometheus.HistogramVec
	// CartCorrectionsTotal counts reconciliation corrections applied to carts.
	CartCorrectionsTotal *prometheus.CounterVec
	// CartMutationsTotal counts persisted cart mutations.
	CartMutationsTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		StockLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_cache_lookups_total",
			Help:      "Count of stock cache lookups by outcome.",
		}, []string{"outcome"})
		StockFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_fetch_total",
			Help:      "Count of stock backend fetches by result.",
		}, []string{"result"})
		StockFetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stock_fetch_duration_ms",
			Help:      "Latency of stock backend fetches in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"})
		CartCorrectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_corrections_total",
			Help:      "Count of stock corrections applied to cart lines.",
		}, []string{"action"})
		CartMutationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Number of persisted cart mutations.",
		})

		StockLookupsTotal = register(reg, StockLookupsTotal)
		StockFetchTotal = register(reg, StockFetchTotal)
		StockFetchLatency = register(reg, StockFetchLatency)
		CartCorrectionsTotal = register(reg, CartCorrectionsTotal)
		CartMutationsTotal = register(reg, CartMutationsTotal)
	})
}

// ObserveStockLookup records a cache lookup outcome when metrics are registered.
func ObserveStockLookup(outcome string) {
	if StockLookupsTotal != nil {
		StockLookupsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveStockFetch records a backend fetch result and its latency in milliseconds.
func ObserveStockFetch(result string, millis float64) {
	if StockFetchTotal != nil {
		StockFetchTotal.WithLabelValues(result).Inc()
	}
	if StockFetchLatency != nil {
		StockFetchLatency.WithLabelValues(result).Observe(millis)
	}
}

// ObserveCartCorrection records a reconciliation correction.
func ObserveCartCorrection(action string) {
	if CartCorrectionsTotal != nil {
		CartCorrectionsTotal.WithLabelValues(action).Inc()
	}
}

// ObserveCartMutation records a persisted cart mutation.
func ObserveCartMutation() {
	if CartMutationsTotal != nil {
		CartMutationsTotal.Inc()
	}
}
