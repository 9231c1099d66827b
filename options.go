package pql

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/pql/config"
	"github.com/zero-day-ai/pql/executor"
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	cache         *Cache
	limits        executor.Options
	concurrency   int
	config        *config.Config
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer. Without one, spans are not
// recorded.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeterProvider enables the engine metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *engineConfig) {
		c.meterProvider = mp
	}
}

// WithCache shares a cache between engines. By default each engine creates
// its own.
func WithCache(cache *Cache) Option {
	return func(c *engineConfig) {
		c.cache = cache
	}
}

// WithLimits bounds every execution.
func WithLimits(limits executor.Options) Option {
	return func(c *engineConfig) {
		c.limits = limits
	}
}

// WithConcurrency bounds the goroutines RunBatch uses. Defaults to 4.
func WithConcurrency(n int) Option {
	return func(c *engineConfig) {
		c.concurrency = n
	}
}

// WithConfig applies a loaded pql.yaml: limits, cache sizes, batch
// concurrency and, unless WithLogger is also given, the logger. Explicit
// options given after WithConfig override it.
func WithConfig(cfg *config.Config) Option {
	return func(c *engineConfig) {
		c.config = cfg
		c.limits = executor.Options{
			MaxCandidates: cfg.Limits.GetMaxCandidates(),
			MaxMatches:    cfg.Limits.GetMaxMatchClauses(),
		}
		c.concurrency = cfg.Worker.GetConcurrency()
	}
}
