package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/zero-day-ai/pql/executor"
	"github.com/zero-day-ai/pql/protoconv"
)

// WorkItem is one query of a batch.
type WorkItem struct {
	// JobID is a UUID that correlates all work items in a batch
	JobID string `json:"job_id"`

	// Index is the position of this item in the batch (0-based)
	Index int `json:"index"`

	// Total is the total number of items in the batch
	Total int `json:"total"`

	// Query is the PQL text to execute
	Query string `json:"query"`

	// Snapshot identifies the configuration the graph was built from
	Snapshot string `json:"snapshot"`

	// Context is the graph context key (graph.Context.Key)
	Context string `json:"context"`

	// TraceID is the distributed tracing trace ID for observability
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the distributed tracing span ID for observability
	SpanID string `json:"span_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when work was submitted
	SubmittedAt int64 `json:"submitted_at"`
}

// Result is the outcome of executing a WorkItem. It is published to the
// job's result channel.
type Result struct {
	// JobID correlates this result with the original work item
	JobID string `json:"job_id"`

	// Index is the position of this result in the batch
	Index int `json:"index"`

	// ResultJSON is the query result encoded by protoconv.MarshalResult.
	// Empty if Error is set.
	ResultJSON string `json:"result_json,omitempty"`

	// Rows is the number of result rows
	Rows int `json:"rows"`

	// Error is the error message if execution failed
	Error string `json:"error,omitempty"`

	// ErrorKind classifies Error (syntax, execution, not_found)
	ErrorKind string `json:"error_kind,omitempty"`

	// WorkerID is the unique identifier of the worker that processed this item
	WorkerID string `json:"worker_id"`

	// StartedAt is the Unix timestamp in milliseconds when execution started
	StartedAt int64 `json:"started_at"`

	// CompletedAt is the Unix timestamp in milliseconds when execution completed
	CompletedAt int64 `json:"completed_at"`
}

// GraphRef names a graph a worker can serve.
type GraphRef struct {
	Snapshot string `json:"snapshot"`
	Context  string `json:"context"`
}

func (g GraphRef) String() string {
	return g.Snapshot + "|" + g.Context
}

// IsValid checks if the WorkItem has all required fields populated correctly.
func (w *WorkItem) IsValid() error {
	if w.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if w.Index < 0 {
		return fmt.Errorf("index must be non-negative, got %d", w.Index)
	}
	if w.Total <= 0 {
		return fmt.Errorf("total must be positive, got %d", w.Total)
	}
	if w.Index >= w.Total {
		return fmt.Errorf("index %d is out of bounds for total %d", w.Index, w.Total)
	}
	if w.Query == "" {
		return fmt.Errorf("query is required")
	}
	if w.Snapshot == "" {
		return fmt.Errorf("snapshot is required")
	}
	if w.Context == "" {
		return fmt.Errorf("context is required")
	}
	if w.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", w.SubmittedAt)
	}
	return nil
}

// Age returns the duration since this work item was submitted.
func (w *WorkItem) Age() time.Duration {
	if w.SubmittedAt <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixMilli()-w.SubmittedAt) * time.Millisecond
}

// HasError returns true if the result represents a failed execution.
func (r *Result) HasError() bool {
	return r.Error != ""
}

// Duration returns the wall-clock time the worker spent processing this item.
func (r *Result) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// IsValid checks if the Result has all required fields populated correctly.
func (r *Result) IsValid() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.Index < 0 {
		return fmt.Errorf("index must be non-negative, got %d", r.Index)
	}
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.StartedAt <= 0 {
		return fmt.Errorf("started_at must be positive, got %d", r.StartedAt)
	}
	if r.CompletedAt < r.StartedAt {
		return fmt.Errorf("completed_at (%d) cannot be before started_at (%d)", r.CompletedAt, r.StartedAt)
	}
	if !r.HasError() && r.ResultJSON == "" {
		return fmt.Errorf("result_json is required when error is empty")
	}
	return nil
}

// ErrRemote wraps the error message of a failed Result.
var ErrRemote = errors.New("remote query failed")

// Decode returns the query result, or an error wrapping ErrRemote when the
// worker reported a failure.
func (r *Result) Decode() (*executor.Result, error) {
	if r.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrRemote, r.Error)
	}
	return protoconv.UnmarshalResult([]byte(r.ResultJSON))
}
