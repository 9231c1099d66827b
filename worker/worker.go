package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/pql"
	"github.com/zero-day-ai/pql/config"
	"github.com/zero-day-ai/pql/executor"
	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/protoconv"
	"github.com/zero-day-ai/pql/queue"
)

const heartbeatInterval = 10 * time.Second

// Engine is the part of *pql.Engine a worker needs.
type Engine interface {
	Lookup(snapshot, contextKey string) (*graph.Graph, error)
	Query(ctx context.Context, g *graph.Graph, text string) (*executor.Result, error)
}

// Options configures the worker behavior.
type Options struct {
	// Client is the queue connection. If nil, Run connects to RedisURL and
	// closes the connection on return.
	Client queue.Client

	// RedisURL is the Redis connection string used when Client is nil.
	RedisURL string

	// Concurrency is the number of worker goroutines to start.
	Concurrency int

	// ShutdownTimeout is the time to wait for in-flight items on shutdown.
	ShutdownTimeout time.Duration

	// PopTimeout bounds one blocking pop.
	PopTimeout time.Duration

	// Prefix is the Redis key prefix.
	Prefix string

	// Graphs are advertised in the graphs set on startup. Each must be in the
	// engine cache when Run is called; the worker keeps its own reference so
	// later cache eviction does not affect them.
	Graphs []queue.GraphRef

	// Logger is the structured logger for worker operations.
	// If nil, slog.Default is used.
	Logger *slog.Logger

	// Config supplies values for any option left at its zero value.
	Config *config.WorkerConfig
}

// Run starts Concurrency goroutines that pop work items, execute them with
// eng and publish results. It blocks until ctx is done or a shutdown signal
// arrives.
//
// Returns an error if the queue connection or graph registration fails.
// A shutdown that exceeds ShutdownTimeout is logged, not returned.
func Run(ctx context.Context, eng Engine, opts Options) error {
	if eng == nil {
		return errors.New("worker: nil engine")
	}
	opts = applyConfig(opts)

	served, err := pinGraphs(eng, opts.Graphs)
	if err != nil {
		return err
	}

	workerID := generateWorkerID()
	keys := queue.NewKeys(opts.Prefix)
	logger := opts.Logger.With("worker_id", workerID, "queue", keys.Queue())

	client := opts.Client
	if client == nil {
		logger.Info("connecting to queue", "redis_url", opts.RedisURL)
		rc, err := queue.NewRedisClient(queue.RedisOptions{URL: opts.RedisURL})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer pql.CloseWithLog(rc, logger, "redis client")
		client = rc
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, ref := range opts.Graphs {
		if err := client.RegisterGraph(ctx, keys.Graphs(), ref); err != nil {
			return fmt.Errorf("failed to register graph: %w", err)
		}
		logger.Info("graph registered", "snapshot", ref.Snapshot, "context", ref.Context)
	}

	if err := client.IncrementWorkerCount(ctx, keys.Workers()); err != nil {
		logger.Error("failed to increment worker count", "error", err)
	}
	defer func() {
		// ctx may already be cancelled here
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := client.DecrementWorkerCount(cleanupCtx, keys.Workers()); err != nil {
			logger.Error("failed to decrement worker count", "error", err)
		}
	}()

	if err := client.Heartbeat(ctx, keys.Health()); err != nil {
		logger.Debug("heartbeat failed", "error", err)
	}
	go runHeartbeat(ctx, client, keys.Health(), logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			workerLoop(ctx, workerNum, served, client, keys, opts.PopTimeout, workerID, logger)
		}(i)
	}

	logger.Info("worker started", "workers", opts.Concurrency)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig)
	case <-ctx.Done():
		logger.Info("context done, initiating graceful shutdown")
	}
	cancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logger.Info("worker shutdown complete")
	case <-time.After(opts.ShutdownTimeout):
		logger.Warn("worker shutdown timeout exceeded", "timeout", opts.ShutdownTimeout)
	}

	return nil
}

// pinnedEngine serves registered graphs from its own map and defers
// everything else to the wrapped engine.
type pinnedEngine struct {
	Engine
	graphs map[queue.GraphRef]*graph.Graph
}

func pinGraphs(eng Engine, refs []queue.GraphRef) (*pinnedEngine, error) {
	p := &pinnedEngine{Engine: eng, graphs: make(map[queue.GraphRef]*graph.Graph, len(refs))}
	for _, ref := range refs {
		g, err := eng.Lookup(ref.Snapshot, ref.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to pin graph %s: %w", ref, err)
		}
		p.graphs[ref] = g
	}
	return p, nil
}

func (p *pinnedEngine) Lookup(snapshot, contextKey string) (*graph.Graph, error) {
	if g, ok := p.graphs[queue.GraphRef{Snapshot: snapshot, Context: contextKey}]; ok {
		return g, nil
	}
	return p.Engine.Lookup(snapshot, contextKey)
}

func runHeartbeat(ctx context.Context, client queue.Client, key string, logger *slog.Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(ctx, key); err != nil {
				// transient; the next tick retries
				logger.Debug("heartbeat failed", "error", err)
			}
		}
	}
}

func workerLoop(ctx context.Context, workerNum int, eng Engine, client queue.Client, keys queue.Keys, popTimeout time.Duration, workerID string, logger *slog.Logger) {
	logger = logger.With("worker_num", workerNum)
	logger.Debug("worker loop started")

	for ctx.Err() == nil {
		item, err := client.Pop(ctx, keys.Queue(), popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("failed to pop work item", "error", err)
			// avoid spinning on a broken connection
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if item == nil {
			continue
		}

		logger.Debug("received work item",
			"job_id", item.JobID,
			"index", item.Index,
			"total", item.Total,
		)

		// the item is already off the queue, so finish it even during shutdown
		result := processWorkItem(context.WithoutCancel(ctx), eng, *item, workerID, logger)

		pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := client.Publish(pubCtx, keys.Results(item.JobID), result); err != nil {
			logger.Error("failed to publish result", "job_id", item.JobID, "error", err)
		}
		pubCancel()
	}
	logger.Debug("worker loop stopped")
}

// processWorkItem executes one item. It always returns a Result; failures
// are reported in Result.Error.
func processWorkItem(ctx context.Context, eng Engine, item queue.WorkItem, workerID string, logger *slog.Logger) queue.Result {
	result := queue.Result{
		JobID:     item.JobID,
		Index:     item.Index,
		WorkerID:  workerID,
		StartedAt: time.Now().UnixMilli(),
	}
	fail := func(kind string, err error) queue.Result {
		result.Error = err.Error()
		result.ErrorKind = kind
		result.CompletedAt = time.Now().UnixMilli()
		logger.Warn("work item failed",
			"job_id", item.JobID,
			"index", item.Index,
			"kind", kind,
			"error", err,
		)
		return result
	}

	if err := item.IsValid(); err != nil {
		return fail(pql.KindConfiguration, fmt.Errorf("invalid work item: %w", err))
	}

	g, err := eng.Lookup(item.Snapshot, item.Context)
	if err != nil {
		return fail(errorKind(err), err)
	}

	res, err := eng.Query(ctx, g, item.Query)
	if err != nil {
		return fail(errorKind(err), err)
	}

	data, err := protoconv.MarshalResult(res)
	if err != nil {
		return fail(pql.KindExecution, fmt.Errorf("failed to encode result: %w", err))
	}

	result.ResultJSON = string(data)
	result.Rows = res.Len()
	result.CompletedAt = time.Now().UnixMilli()

	logger.Info("work item completed",
		"job_id", item.JobID,
		"index", item.Index,
		"rows", result.Rows,
		"duration_ms", result.CompletedAt-result.StartedAt,
	)
	return result
}

func errorKind(err error) string {
	var perr *pql.Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return pql.KindExecution
}

// generateWorkerID creates a unique identifier for this worker instance.
// Uses hostname + PID + UUID for uniqueness.
func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}

// applyConfig fills zero-valued options from the config section, whose
// getters supply the defaults when it is nil.
func applyConfig(opts Options) Options {
	cfg := opts.Config
	if opts.RedisURL == "" {
		opts.RedisURL = cfg.GetRedisURL()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = cfg.GetConcurrency()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = cfg.GetShutdownTimeout()
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = cfg.GetPopTimeout()
	}
	if opts.Prefix == "" {
		opts.Prefix = cfg.GetQueuePrefix()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
