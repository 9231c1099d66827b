// Package health checks the pieces a PQL deployment depends on: the
// configuration tree on disk, the Redis queue and the workers serving it.
//
// Every check returns a Status; Combine folds several into one:
//
//	status := health.Combine(
//	    health.FileCheck(treePath),
//	    health.QueueCheck(ctx, client, keys),
//	    health.GraphCheck(ctx, client, keys, ref),
//	)
//	if status.IsUnhealthy() {
//	    log.Printf("health check failed: %s %+v", status.Message, status.Details)
//	}
//
// # Status Priority
//
// When combining checks, any unhealthy check makes the result unhealthy;
// otherwise any degraded check makes it degraded.
package health
