// Package queue provides Redis-based work queue primitives for distributed
// query execution.
//
// A submitter pushes one WorkItem per query onto a shared list, workers pop
// items, execute them against a graph they hold and publish a Result on a
// per-job pub/sub channel.
//
// # Redis Key Schema
//
// Every key starts with a configurable prefix (default "pql"):
//   - <prefix>:queue - List of work items (LPUSH/BRPOP)
//   - <prefix>:graphs - Set of "<snapshot>|<context>" graphs held by workers
//   - <prefix>:health - String with 30s TTL refreshed by worker heartbeats
//   - <prefix>:workers - Integer counter of running workers
//   - <prefix>:results:<jobID> - Pub/Sub channel for job results
//
// # Usage
//
// Creating a client:
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{
//		URL: "redis://localhost:6379",
//	})
//
// Running a batch and waiting for every result:
//
//	keys := queue.NewKeys("pql")
//	results, err := queue.RunBatch(ctx, client, keys, queue.Batch{
//		Snapshot: g.Snapshot(),
//		Context:  g.Context().Key(),
//		Queries:  []string{`MATCH (a:address) RETURN COUNT(*)`},
//	})
//	for _, r := range results {
//		res, err := r.Decode()
//		...
//	}
package queue
