package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	CartTTL       time.Duration
	CartKeyPrefix string

	StockCacheTTL       time.Duration
	StockCacheSize      int
	StockFailurePolicy  string
	StockFetchTimeout   time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	ReconcileConcurrency int
	ReconcileRateLimit   string
	ProductCacheTTL      time.Duration
	IdempotencyTTL       time.Duration
	MaxBodyBytes         int64

	VATBps       int
	CurrencyCode string

	Obs Observability
}

// Observability groups logging, metrics and tracing settings.
type Observability struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	EnablePrometheus bool
	EnableTracing    bool
	OTLPEndpoint     string
	ServiceName      string
	SamplingRatio    float64
	MetricsBuckets   string
	EnablePprof      bool
	PprofUser        string
	PprofPass        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CartTTL:       parseDuration(k.String("CART_TTL"), "168h"),
		CartKeyPrefix: valueOrDefault(k.String("CART_KEY_PREFIX"), "matomart_cart"),

		StockCacheTTL:       parseDuration(k.String("STOCK_CACHE_TTL"), "30s"),
		StockCacheSize:      parseInt(k.String("STOCK_CACHE_SIZE"), 1024),
		StockFailurePolicy:  strings.ToLower(valueOrDefault(k.String("STOCK_FAILURE_POLICY"), "zero")),
		StockFetchTimeout:   parseDuration(k.String("STOCK_FETCH_TIMEOUT"), "5s"),
		BreakerMinRequests:  parseInt(k.String("STOCK_BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("STOCK_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("STOCK_BREAKER_OPEN_FOR"), "30s"),

		ReconcileConcurrency: parseInt(k.String("RECONCILE_CONCURRENCY"), 8),
		ReconcileRateLimit:   valueOrDefault(k.String("RATE_LIMIT_RECONCILE"), "30-M"),
		ProductCacheTTL:      parseDuration(k.String("PRODUCT_CACHE_TTL"), "30s"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		MaxBodyBytes:         int64(parseInt(k.String("MAX_BODY_BYTES"), 64<<10)),

		VATBps:       parseInt(k.String("PRICING_VAT_BPS"), 500),
		CurrencyCode: strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),

		Obs: Observability{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "matomart"),
			EnablePrometheus: parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING")),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "matomart-api"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 0.1),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePprof:      parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.StockFailurePolicy != "zero" && cfg.StockFailurePolicy != "last_known" {
		return nil, fmt.Errorf("STOCK_FAILURE_POLICY must be zero or last_known, got %q", cfg.StockFailurePolicy)
	}
	if cfg.ReconcileConcurrency < 1 {
		return nil, errors.New("RECONCILE_CONCURRENCY must be positive")
	}
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		return nil, errors.New("STOCK_BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	if cfg.VATBps < 0 {
		return nil, errors.New("PRICING_VAT_BPS must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// AllowedOrigins returns the CORS origins, defaulting to any origin outside
// production.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSAllowedOrigins) > 0 {
		return c.CORSAllowedOrigins
	}
	if c.AppEnv == "production" {
		return nil
	}
	return []string{"*"}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
