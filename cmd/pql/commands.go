package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/pql"
	"github.com/zero-day-ai/pql/cfgtree"
	"github.com/zero-day-ai/pql/executor"
	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/health"
	"github.com/zero-day-ai/pql/queue"
	"github.com/zero-day-ai/pql/worker"
)

// graphFlags selects the configuration tree and build context.
type graphFlags struct {
	tree       string
	deviceKind string
	scope      string
	scopeName  string
	version    string
}

func (f *graphFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tree, "config", "", "Normalized configuration tree (YAML)")
	cmd.Flags().StringVar(&f.deviceKind, "device-kind", "firewall", "Device kind (firewall, panorama)")
	cmd.Flags().StringVar(&f.scope, "scope", "vsys", "Scope (shared, device-group, vsys, template)")
	cmd.Flags().StringVar(&f.scopeName, "scope-name", "vsys1", "Scope name; ignored for shared")
	cmd.Flags().StringVar(&f.version, "version", "10.1", "Configuration version (major.minor)")
	_ = cmd.MarkFlagRequired("config")
}

func (f *graphFlags) context() (graph.Context, error) {
	kind, err := graph.ParseDeviceKind(f.deviceKind)
	if err != nil {
		return graph.Context{}, err
	}
	scope, err := cfgtree.ParseScope(f.scope)
	if err != nil {
		return graph.Context{}, err
	}
	name := f.scopeName
	if scope == cfgtree.ScopeShared {
		name = ""
	}
	gctx := graph.Context{DeviceKind: kind, Scope: scope, ScopeName: name, Version: f.version}
	return gctx, gctx.Validate()
}

func (f *graphFlags) load() (*cfgtree.Tree, graph.Context, error) {
	gctx, err := f.context()
	if err != nil {
		return nil, graph.Context{}, err
	}
	tree, err := cfgtree.LoadYAML(f.tree)
	if err != nil {
		return nil, graph.Context{}, err
	}
	return tree, gctx, nil
}

func (f *graphFlags) build(ctx context.Context, eng *pql.Engine) (*graph.Graph, error) {
	tree, gctx, err := f.load()
	if err != nil {
		return nil, err
	}
	g, warnings, err := eng.Graph(ctx, tree, gctx)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		eng.Logger().Warn("build warning", "code", w.Code, "location", w.Location.String(), "entry", w.Entry, "message", w.Message)
	}
	return g, nil
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <query>",
		Short: "Check that a query is well-formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pql.Verify(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func queryCmd(g *globals) *cobra.Command {
	var (
		flags   graphFlags
		records bool
	)

	cmd := &cobra.Command{
		Use:   "query <query>...",
		Short: "Run queries against a configuration tree and print JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := g.engine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			target, err := flags.build(ctx, eng)
			if err != nil {
				return err
			}

			var failed error
			for _, br := range eng.RunBatch(ctx, target, args) {
				if br.Err != nil {
					failed = errors.Join(failed, fmt.Errorf("query %d: %w", br.Index, br.Err))
					continue
				}
				if err := writeResult(cmd.OutOrStdout(), br.Result, records); err != nil {
					return err
				}
			}
			return failed
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&records, "records", false, "Print one object per row instead of columns and rows")
	return cmd
}

func workerCmd(g *globals) *cobra.Command {
	var (
		flags       graphFlags
		redisURL    string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve queued queries against a configuration tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := g.engine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			target, err := flags.build(cmd.Context(), eng)
			if err != nil {
				return err
			}
			return worker.Run(cmd.Context(), eng, worker.Options{
				RedisURL:    redisURL,
				Concurrency: concurrency,
				Logger:      eng.Logger(),
				Config:      cfg.Worker,
				Graphs: []queue.GraphRef{{
					Snapshot: target.Snapshot(),
					Context:  target.Context().Key(),
				}},
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL; overrides worker.redis_url")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker goroutines; overrides worker.concurrency")
	return cmd
}

func submitCmd(g *globals) *cobra.Command {
	var (
		flags    graphFlags
		redisURL string
		timeout  time.Duration
		records  bool
	)

	cmd := &cobra.Command{
		Use:   "submit <query>...",
		Short: "Queue queries for workers and print their results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			for i, text := range args {
				if err := pql.Verify(text); err != nil {
					return fmt.Errorf("query %d: %w", i, err)
				}
			}
			tree, gctx, err := flags.load()
			if err != nil {
				return err
			}

			if redisURL == "" {
				redisURL = cfg.Worker.GetRedisURL()
			}
			client, err := queue.NewRedisClient(queue.RedisOptions{URL: redisURL})
			if err != nil {
				return err
			}
			defer pql.CloseWithLog(client, logger, "redis client")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results, err := queue.RunBatch(ctx, client, queue.NewKeys(cfg.Worker.GetQueuePrefix()), queue.Batch{
				Snapshot: tree.Snapshot(),
				Context:  gctx.Key(),
				Queries:  args,
			})
			if err != nil {
				return err
			}

			var failed error
			for _, r := range results {
				res, err := r.Decode()
				if err != nil {
					failed = errors.Join(failed, fmt.Errorf("query %d: %w", r.Index, err))
					continue
				}
				logger.Debug("result received", "index", r.Index, "worker_id", r.WorkerID, "duration", r.Duration())
				if err := writeResult(cmd.OutOrStdout(), res, records); err != nil {
					return err
				}
			}
			return failed
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL; overrides worker.redis_url")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "How long to wait for all results")
	cmd.Flags().BoolVar(&records, "records", false, "Print one object per row instead of columns and rows")
	return cmd
}

func writeResult(w io.Writer, res *executor.Result, records bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if records {
		return enc.Encode(res.Records())
	}
	return enc.Encode(res)
}

func healthCmd(g *globals) *cobra.Command {
	var (
		flags    graphFlags
		redisURL string
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that workers are serving a configuration tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			checks := []health.Status{health.FileCheck(flags.tree)}
			if redisURL == "" {
				redisURL = cfg.Worker.GetRedisURL()
			}
			client, err := queue.NewRedisClient(queue.RedisOptions{URL: redisURL})
			if err != nil {
				checks = append(checks, health.Unhealthy("queue unreachable", map[string]any{"error": err.Error()}))
			} else {
				defer pql.CloseWithLog(client, logger, "redis client")
				keys := queue.NewKeys(cfg.Worker.GetQueuePrefix())
				checks = append(checks, health.QueueCheck(cmd.Context(), client, keys))
				if tree, gctx, err := flags.load(); err == nil {
					ref := queue.GraphRef{Snapshot: tree.Snapshot(), Context: gctx.Key()}
					checks = append(checks, health.GraphCheck(cmd.Context(), client, keys, ref))
				}
			}

			status := health.Combine(checks...)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(status); err != nil {
				return err
			}
			if status.IsUnhealthy() {
				return errors.New(status.Message)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL; overrides worker.redis_url")
	return cmd
}
