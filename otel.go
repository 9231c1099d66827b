package pql

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName is the meter and default tracer name.
const instrumentationName = "github.com/zero-day-ai/pql"

// Span names.
const (
	spanBuildGraph = "pql.build_graph"
	spanExecute    = "pql.execute"
)

// otelMetrics holds the metric instruments of an engine. They are created
// once in New and reused for every query.
type otelMetrics struct {
	// queryDuration records execution time in milliseconds
	queryDuration metric.Float64Histogram

	// queryRows counts rows returned
	queryRows metric.Int64Counter

	// graphBuilds counts graphs built (cache misses that reached the builder)
	graphBuilds metric.Int64Counter

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"pql.query.duration",
		metric.WithDescription("Query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create query duration histogram: %w", err)
	}

	m.queryRows, err = meter.Int64Counter(
		"pql.query.rows",
		metric.WithDescription("Number of result rows returned"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create query rows counter: %w", err)
	}

	m.graphBuilds, err = meter.Int64Counter(
		"pql.graph.builds",
		metric.WithDescription("Number of graphs built"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph builds counter: %w", err)
	}

	m.cacheHits, err = meter.Int64Counter(
		"pql.cache.hits",
		metric.WithDescription("Graph and query cache hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	m.cacheMisses, err = meter.Int64Counter(
		"pql.cache.misses",
		metric.WithDescription("Graph and query cache misses"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	return m, nil
}

// tracerOrNoop returns t, or a no-op tracer when t is nil.
func tracerOrNoop(t trace.Tracer) trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return t
}

// recordCache counts a cache lookup. kind is "graph" or "query".
func (e *Engine) recordCache(ctx context.Context, kind string, hit bool) {
	if e.metrics == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("pql.cache", kind))
	if hit {
		e.metrics.cacheHits.Add(ctx, 1, opts)
	} else {
		e.metrics.cacheMisses.Add(ctx, 1, opts)
	}
}

func (e *Engine) recordBuild(ctx context.Context, gctx string) {
	if e.metrics == nil {
		return
	}
	e.metrics.graphBuilds.Add(ctx, 1, metric.WithAttributes(attribute.String("pql.context", gctx)))
}

// recordQuery records the duration and row count of one execution.
func (e *Engine) recordQuery(ctx context.Context, elapsed time.Duration, rows int, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	opts := metric.WithAttributes(attribute.String("pql.status", status))
	e.metrics.queryDuration.Record(ctx, float64(elapsed.Microseconds())/1000, opts)
	if err == nil {
		e.metrics.queryRows.Add(ctx, int64(rows))
	}
}

// endSpan sets the span status from err and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
