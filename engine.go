package pql

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zero-day-ai/pql/cfgtree"
	"github.com/zero-day-ai/pql/executor"
	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

// DefaultConcurrency bounds RunBatch when no concurrency is configured.
const DefaultConcurrency = 4

// Engine builds, caches and queries configuration graphs. It is safe for
// concurrent use.
type Engine struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *otelMetrics
	cache       *Cache
	limits      executor.Options
	concurrency int

	builds singleflight.Group
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.concurrency < 0 {
		return nil, newError("New", KindConfiguration, fmt.Errorf("concurrency %d: %w", cfg.concurrency, ErrInvalidConfig))
	}
	if cfg.limits.MaxCandidates < 0 || cfg.limits.MaxMatches < 0 {
		return nil, newError("New", KindConfiguration, fmt.Errorf("negative limits: %w", ErrInvalidConfig))
	}

	e := &Engine{
		logger:      cfg.logger,
		tracer:      tracerOrNoop(cfg.tracer),
		cache:       cfg.cache,
		limits:      cfg.limits,
		concurrency: cfg.concurrency,
	}
	if e.logger == nil {
		if cfg.config != nil {
			e.logger = cfg.config.Log.NewLogger(os.Stderr)
		} else {
			e.logger = slog.Default()
		}
	}
	if e.cache == nil {
		if cfg.config != nil {
			e.cache = NewCache(cfg.config.Cache.GetMaxGraphs(), cfg.config.Cache.GetMaxQueries())
		} else {
			e.cache = NewCache(DefaultMaxGraphs, DefaultMaxQueries)
		}
	}
	if e.concurrency == 0 {
		e.concurrency = DefaultConcurrency
	}

	if cfg.meterProvider != nil {
		metrics, err := newOTelMetrics(cfg.meterProvider.Meter(instrumentationName))
		if err != nil {
			e.logger.Warn("failed to initialize metrics", "error", err)
		} else {
			e.metrics = metrics
		}
	}
	return e, nil
}

// Cache returns the engine's cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Graph returns the graph of src for gctx, building it on a cache miss.
// Concurrent calls for the same snapshot and context share one build. A
// source with an empty snapshot is built every time and never cached.
func (e *Engine) Graph(ctx context.Context, src cfgtree.Source, gctx graph.Context) (*graph.Graph, []graph.BuildWarning, error) {
	key := graphKey{Snapshot: src.Snapshot(), Context: gctx.Key()}

	ctx, span := e.tracer.Start(ctx, spanBuildGraph, trace.WithAttributes(
		attribute.String("pql.snapshot", key.Snapshot),
		attribute.String("pql.context", key.Context),
	))

	if key.Snapshot != "" {
		if entry, ok := e.cache.graph(key); ok {
			e.recordCache(ctx, "graph", true)
			span.SetAttributes(attribute.Bool("pql.cache_hit", true))
			endSpan(span, nil)
			return entry.graph, entry.warnings, nil
		}
		e.recordCache(ctx, "graph", false)
	}
	span.SetAttributes(attribute.Bool("pql.cache_hit", false))

	build := func() (any, error) {
		start := time.Now()
		g, warnings, err := graph.Build(src, gctx, graph.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.recordBuild(ctx, key.Context)
		e.logger.Debug("graph built",
			"snapshot", key.Snapshot,
			"context", key.Context,
			"nodes", g.Len(),
			"edges", len(g.Edges()),
			"warnings", len(warnings),
			"duration", time.Since(start))

		entry := cachedGraph{graph: g, warnings: warnings}
		if key.Snapshot != "" {
			e.cache.putGraph(key, entry)
		}
		return entry, nil
	}

	// Sources without a snapshot have no identity to share a build under.
	var (
		v      any
		err    error
		shared bool
	)
	if key.Snapshot == "" {
		v, err = build()
	} else {
		v, err, shared = e.builds.Do(key.String(), build)
	}
	if err != nil {
		err = newError("Engine.Graph", KindBuild, err).WithContext(map[string]any{"context": key.Context})
		endSpan(span, err)
		return nil, nil, err
	}

	entry := v.(cachedGraph)
	span.SetAttributes(
		attribute.Bool("pql.shared_build", shared),
		attribute.Int("pql.nodes", entry.graph.Len()),
		attribute.Int("pql.warnings", len(entry.warnings)),
	)
	endSpan(span, nil)
	return entry.graph, entry.warnings, nil
}

// Lookup returns the cached graph for a snapshot and context key (see
// graph.Context.Key).
func (e *Engine) Lookup(snapshot, contextKey string) (*graph.Graph, error) {
	g, ok := e.cache.Lookup(snapshot, contextKey)
	if !ok {
		return nil, newError("Engine.Lookup", KindNotFound, ErrGraphNotFound).
			WithContext(map[string]any{"snapshot": snapshot, "context": contextKey})
	}
	return g, nil
}

// Parse parses text, reusing a cached parse of the same text. Syntax errors
// are not cached.
func (e *Engine) Parse(text string) (*query.Query, error) {
	return e.parse(context.Background(), "Engine.Parse", text)
}

func (e *Engine) parse(ctx context.Context, op, text string) (*query.Query, error) {
	if q, ok := e.cache.query(text); ok {
		e.recordCache(ctx, "query", true)
		return q, nil
	}
	e.recordCache(ctx, "query", false)

	q, err := query.Parse(text)
	if err != nil {
		return nil, newError(op, KindSyntax, err)
	}
	e.cache.putQuery(text, q)
	return q, nil
}

// Execute runs q against g with the engine's limits.
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, q *query.Query) (*executor.Result, error) {
	return e.execute(ctx, "Engine.Execute", g, q)
}

func (e *Engine) execute(ctx context.Context, op string, g *graph.Graph, q *query.Query) (*executor.Result, error) {
	ctx, span := e.tracer.Start(ctx, spanExecute, trace.WithAttributes(
		attribute.String("pql.query", q.Text),
		attribute.String("pql.snapshot", g.Snapshot()),
		attribute.Int("pql.matches", len(q.Matches)),
	))

	start := time.Now()
	res, err := executor.Execute(ctx, g, q, e.limits)
	elapsed := time.Since(start)

	rows := 0
	if res != nil {
		rows = res.Len()
	}
	e.recordQuery(ctx, elapsed, rows, err)

	if err != nil {
		err = newError(op, KindExecution, err)
		e.logger.Debug("query failed", "query", q.Text, "error", err)
		endSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("pql.rows", rows))
	endSpan(span, nil)
	return res, nil
}

// Query parses (or reuses) text and executes it against g.
func (e *Engine) Query(ctx context.Context, g *graph.Graph, text string) (*executor.Result, error) {
	q, err := e.parse(ctx, "Engine.Query", text)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, "Engine.Query", g, q)
}

// BatchResult is the outcome of one query of a batch.
type BatchResult struct {
	Index  int
	Query  string
	Result *executor.Result
	Err    error
}

// RunBatch runs every query against g concurrently and returns the results
// in input order. A failing query does not stop the others.
func (e *Engine) RunBatch(ctx context.Context, g *graph.Graph, texts []string) []BatchResult {
	results := make([]BatchResult, len(texts))

	var eg errgroup.Group
	eg.SetLimit(e.concurrency)
	for i, text := range texts {
		i, text := i, text
		eg.Go(func() error {
			res, err := e.Query(ctx, g, text)
			results[i] = BatchResult{Index: i, Query: text, Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	e.logger.Debug("batch completed", "queries", len(texts), "failed", failed)
	return results
}
