package health

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/zero-day-ai/pql/queue"
)

// FileCheck verifies that a file or directory exists at path.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unhealthy(fmt.Sprintf("path '%s' does not exist", path), map[string]any{"path": path})
		}
		return Unhealthy(fmt.Sprintf("failed to stat path '%s'", path), map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}
	return Healthy(fmt.Sprintf("%s '%s' exists", fileType, path))
}

// QueueCheck reports whether workers are serving the queue. It is unhealthy
// when Redis cannot be read or no worker is registered, and degraded when
// workers are counted but none has sent a recent heartbeat.
func QueueCheck(ctx context.Context, client queue.Client, keys queue.Keys) Status {
	workers, err := client.GetWorkerCount(ctx, keys.Workers())
	if err != nil {
		return Unhealthy("failed to read worker count", map[string]any{"error": err.Error()})
	}

	alive, err := client.Healthy(ctx, keys.Health())
	if err != nil {
		return Unhealthy("failed to read heartbeat", map[string]any{"error": err.Error()})
	}

	details := map[string]any{"workers": workers, "heartbeat": alive, "queue": keys.Queue()}
	switch {
	case workers <= 0:
		return Unhealthy("no workers registered", details)
	case !alive:
		return Degraded("worker heartbeat expired", details)
	default:
		return Healthy(fmt.Sprintf("%d worker(s) serving %s", workers, keys.Queue()))
	}
}

// GraphCheck reports whether some worker has advertised ref. A missing
// graph is degraded: the queue works, but items for ref fail with not_found.
func GraphCheck(ctx context.Context, client queue.Client, keys queue.Keys, ref queue.GraphRef) Status {
	refs, err := client.ListGraphs(ctx, keys.Graphs())
	if err != nil {
		return Unhealthy("failed to list graphs", map[string]any{"error": err.Error()})
	}
	if !slices.Contains(refs, ref) {
		return Degraded(fmt.Sprintf("graph %s is not served", ref), map[string]any{
			"snapshot": ref.Snapshot,
			"context":  ref.Context,
			"served":   len(refs),
		})
	}
	return Healthy(fmt.Sprintf("graph %s is served", ref))
}

// Combine aggregates multiple checks into a single status.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(unhealthy)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(unhealthy),
			"degraded":      len(degraded),
			"healthy":       healthyCount,
			"failed_checks": unhealthy,
		})
	}

	if len(degraded) > 0 {
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degraded),
			"healthy":         healthyCount,
			"degraded_checks": degraded,
		})
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
