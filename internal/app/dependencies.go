package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/matomart-api/internal/cart"
	"github.com/noah-isme/matomart-api/internal/catalog"
	"github.com/noah-isme/matomart-api/internal/checkout"
	"github.com/noah-isme/matomart-api/internal/common"
	"github.com/noah-isme/matomart-api/internal/config"
	"github.com/noah-isme/matomart-api/internal/events"
	"github.com/noah-isme/matomart-api/internal/health"
	"github.com/noah-isme/matomart-api/internal/lock"
	"github.com/noah-isme/matomart-api/internal/obs"
	"github.com/noah-isme/matomart-api/internal/ratelimit"
	"github.com/noah-isme/matomart-api/internal/resilience"
	"github.com/noah-isme/matomart-api/internal/stock"
)

// Sources are the backends the service reads from. Redis is optional; without
// it carts live in process memory and locks, events and rate limits stay local.
type Sources struct {
	Products  catalog.ProductSource
	Discounts catalog.DiscountSource
	Stock     stock.Source
	KV        cart.KV
	Redis     *redis.Client
	Checks    []health.Check
}

// Dependencies enumerates the services shared by the HTTP layer.
type Dependencies struct {
	Config      *config.Config
	Logger      zerolog.Logger
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Validator   *validator.Validate
	HTTPMetrics *obs.HTTPMetrics

	Products   catalog.ProductSource
	Discounts  catalog.DiscountSource
	Breaker    *resilience.Breaker
	Stock      *stock.Cache
	Carts      *cart.Store
	CartSvc    *cart.Service
	Quotes     *checkout.Service
	Reconciler *cart.Reconciler
	Watcher    *cart.Watcher
	Bus        *events.Bus

	ReconcileLimiter ratelimit.Limiter
	Idem             common.Idem
	Checks           []health.Check

	closers []func()
}

// Open connects to Postgres and, when configured, Redis, then assembles the
// service graph on top of them.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "matomart-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	repo := &catalog.Repository{DB: pool}
	src := Sources{
		Products:  repo,
		Discounts: repo,
		Stock:     repo,
		Checks: []health.Check{{
			Name:  "db",
			Probe: func(ctx context.Context) error { return pool.Ping(ctx) },
		}},
	}
	if rdb != nil {
		src.Redis = rdb
		src.KV = cart.RedisKV{Client: rdb}
		src.Checks = append(src.Checks, health.Check{
			Name:    "redis",
			Timeout: 300 * time.Millisecond,
			Probe:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		logger.Warn().Msg("REDIS_URL not set; carts are kept in process memory")
	}

	deps, err := Assemble(cfg, logger, src)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		pool.Close()
		return nil, err
	}
	deps.DB = pool
	deps.closers = append(deps.closers, pool.Close)
	if rdb != nil {
		deps.closers = append(deps.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		})
	}
	return deps, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if cfg.Obs.EnableTracing {
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.Obs.EnablePrometheus {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Assemble builds the cart, stock and checkout services over src.
func Assemble(cfg *config.Config, logger zerolog.Logger, src Sources) (*Dependencies, error) {
	if src.Products == nil || src.Stock == nil {
		return nil, errors.New("app: product and stock sources are required")
	}
	if src.KV == nil {
		src.KV = cart.NewMemoryKV()
	}

	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Redis:     src.Redis,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
		Discounts: src.Discounts,
		Checks:    src.Checks,
	}

	productCache := catalog.NewCache(nil, cfg.ProductCacheTTL)
	var locker lock.Locker = lock.NewKeyed()
	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if src.Redis != nil {
		productCache = catalog.NewCache(src.Redis, cfg.ProductCacheTTL)
		locker = lock.Chain{lock.NewKeyed(), lock.Redis{Client: src.Redis, Prefix: "matomart:lock:"}}
		bus.Notifiers = append(bus.Notifiers, events.RedisPublisher{Client: src.Redis})
		d.Idem = common.Idem{R: src.Redis, TTL: cfg.IdempotencyTTL, Prefix: "matomart:idem:"}
	}
	d.Bus = bus
	d.Products = &catalog.CachedProducts{Source: src.Products, Cache: productCache, Logger: logger}

	d.Breaker = resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("stock").
		WithLogger(logger)
	stockCache, err := stock.NewCache(stock.GuardedSource{Source: src.Stock, Breaker: d.Breaker}, stock.Options{
		TTL:          cfg.StockCacheTTL,
		Size:         cfg.StockCacheSize,
		Policy:       stock.ParsePolicy(cfg.StockFailurePolicy),
		FetchTimeout: cfg.StockFetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	d.Stock = stockCache

	d.Carts = cart.NewStore(src.KV, cart.StoreOptions{
		Prefix: cfg.CartKeyPrefix,
		TTL:    cfg.CartTTL,
		Locker: locker,
		Logger: logger,
	})
	d.CartSvc = &cart.Service{Store: d.Carts, Products: d.Products}
	d.Quotes = &checkout.Service{
		Products:  d.Products,
		Discounts: src.Discounts,
		TaxBps:    cfg.VATBps,
		Currency:  cfg.CurrencyCode,
		Logger:    logger,
	}
	d.Reconciler = &cart.Reconciler{
		Store:       d.Carts,
		Stock:       d.Stock,
		Bus:         bus,
		Concurrency: cfg.ReconcileConcurrency,
		Logger:      logger,
	}
	d.Watcher = cart.NewWatcher(d.Carts, d.Reconciler, cart.WithWatcherLogger(logger))
	d.closers = append(d.closers, d.Watcher.Close)

	limiter, err := ratelimit.NewFixed(cfg.ReconcileRateLimit, src.Redis, "matomart:ratelimit:reconcile")
	if err != nil {
		d.Close()
		return nil, err
	}
	d.ReconcileLimiter = limiter
	d.closers = append(d.closers, limiter.Close)
	return d, nil
}

// Info reports runtime state for the readiness endpoint.
func (d *Dependencies) Info() map[string]string {
	store := "memory"
	if d.Redis != nil {
		store = "redis"
	}
	watcher := "stopped"
	if d.Watcher != nil && d.Watcher.Alive() {
		watcher = "running"
	}
	return map[string]string{
		"stock_breaker": d.Breaker.State().String(),
		"cart_store":    store,
		"cart_watcher":  watcher,
	}
}

// Close stops background work and releases connections in reverse order.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
