package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Batch is a set of queries to run against one graph.
type Batch struct {
	Snapshot string
	Context  string
	Queries  []string

	// TraceID and SpanID are copied onto every work item.
	TraceID string
	SpanID  string
}

// Submit pushes one work item per query and returns the job ID. Callers that
// want the results must subscribe to Keys.Results(jobID) before pushing; use
// RunBatch for that.
func Submit(ctx context.Context, client Client, keys Keys, jobID string, b Batch) error {
	now := time.Now().UnixMilli()
	for i, q := range b.Queries {
		item := WorkItem{
			JobID:       jobID,
			Index:       i,
			Total:       len(b.Queries),
			Query:       q,
			Snapshot:    b.Snapshot,
			Context:     b.Context,
			TraceID:     b.TraceID,
			SpanID:      b.SpanID,
			SubmittedAt: now,
		}
		if err := item.IsValid(); err != nil {
			return fmt.Errorf("invalid work item %d: %w", i, err)
		}
		if err := client.Push(ctx, keys.Queue(), item); err != nil {
			return err
		}
	}
	return nil
}

// RunBatch submits b under a fresh job ID and waits until every query has
// produced a result. Results are returned in query order. Cancelling ctx
// stops the wait; results received so far are discarded.
func RunBatch(ctx context.Context, client Client, keys Keys, b Batch) ([]Result, error) {
	if len(b.Queries) == 0 {
		return []Result{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobID := uuid.New().String()
	results, err := client.Subscribe(ctx, keys.Results(jobID))
	if err != nil {
		return nil, err
	}

	if err := Submit(ctx, client, keys, jobID, b); err != nil {
		return nil, err
	}

	out := make([]Result, len(b.Queries))
	seen := make([]bool, len(b.Queries))
	remaining := len(b.Queries)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("job %s: %d of %d results missing: %w", jobID, remaining, len(b.Queries), ctx.Err())
		case r, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("job %s: %w", jobID, err)
				}
				return nil, fmt.Errorf("job %s: result subscription closed", jobID)
			}
			if r.JobID != jobID || r.Index < 0 || r.Index >= len(out) || seen[r.Index] {
				continue
			}
			out[r.Index] = r
			seen[r.Index] = true
			remaining--
		}
	}
	return out, nil
}
