package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/matomart-api/internal/cart"
	"github.com/noah-isme/matomart-api/internal/catalog"
	"github.com/noah-isme/matomart-api/internal/checkout"
	"github.com/noah-isme/matomart-api/internal/health"
	"github.com/noah-isme/matomart-api/internal/obs"
	"github.com/noah-isme/matomart-api/internal/ratelimit"
	"github.com/noah-isme/matomart-api/internal/security"
)

// NewRouter mounts the public API on a chi router.
func NewRouter(d *Dependencies) http.Handler {
	cfg := d.Config

	cartHandler := &cart.Handler{
		Svc:        d.CartSvc,
		Quotes:     d.Quotes,
		Reconciler: d.Reconciler,
		Validate:   d.Validator,
		Now:        time.Now,
	}
	checkoutHandler := &checkout.Handler{Svc: d.Quotes, Carts: d.CartSvc, Stock: d.Stock}
	catalogHandler := &catalog.Handler{Stock: d.Stock, Products: d.Products, Discounts: d.Discounts}
	healthHandler := health.Handler{Checks: d.Checks, Info: d.Info}
	reconcileLimit := ratelimit.Handler{
		Limiter: d.ReconcileLimiter,
		Key:     ratelimit.ByClientIP,
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("reconcile_rate_limit_unavailable") },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.EnableTracing {
		r.Use(obs.Tracing("matomart-api"))
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{HSTS: cfg.AppEnv == "production", NoStore: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.EnablePprof {
		r.Mount("/debug/pprof", http.StripPrefix("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass, cfg.AppEnv == "production")))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Post("/{id}/checkout/draft", checkoutHandler.Draft)
			c.With(reconcileLimit.Middleware).Post("/{id}/reconcile", cartHandler.Reconcile)
			c.Group(func(g chi.Router) {
				g.Use(d.Idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Delete("/{id}", cartHandler.Clear)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Patch("/{id}/items/{productId}", cartHandler.UpdateItem)
				g.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
			})
		})
		v.Get("/products/{id}/stock", catalogHandler.ProductStock)
		v.Get("/products/{id}/price", catalogHandler.ProductPrice)
	})
	return r
}
