// Package worker runs PQL queries pulled from a Redis work queue.
//
// # Architecture
//
// Workers operate in a producer-consumer pattern:
//   - Submitter (producer): queue.RunBatch pushes one WorkItem per query
//   - Workers (consumers): pop WorkItems, execute them against a graph held
//     by the local engine, publish Results
//   - Submitter (collector): receives Results on the job's channel
//
// A worker only answers for graphs its engine has built. Items naming an
// unknown snapshot or context fail with a not_found result rather than being
// requeued.
//
// # Usage
//
//	eng, _ := pql.New(pql.WithConfig(cfg))
//	g, _, err := eng.Graph(ctx, src, gctx)
//	...
//	err = worker.Run(ctx, eng, worker.Options{
//	    Config: cfg.Worker,
//	    Graphs: []queue.GraphRef{{Snapshot: g.Snapshot(), Context: g.Context().Key()}},
//	})
//
// Run blocks until ctx is cancelled or the process receives SIGTERM or
// SIGINT, then waits up to the shutdown timeout for in-flight items.
//
// # Configuration
//
// Explicit Options values win over the config.WorkerConfig section, which
// wins over the defaults (4 goroutines, 30s shutdown, 5s pop timeout,
// "pql" key prefix).
package worker
