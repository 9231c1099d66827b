package pql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for engine operations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrGraphNotFound indicates that no cached graph exists for the requested
	// snapshot and context. Workers report it when a batch item names a graph
	// the engine has not built.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrInvalidConfig indicates the engine configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize engine errors.
const (
	// KindSyntax is a query that does not parse.
	KindSyntax = "syntax"

	// KindExecution is a query that parsed but could not run against the graph.
	KindExecution = "execution"

	// KindBuild is a graph that could not be built, such as an invalid context.
	KindBuild = "build"

	// KindNotFound is a missing cached graph.
	KindNotFound = "not_found"

	// KindConfiguration is an invalid engine configuration.
	KindConfiguration = "configuration"
)

// Error wraps an underlying error with the engine operation that failed and
// the category of the failure.
//
// Example:
//
//	res, err := engine.Query(ctx, g, text)
//	var perr *pql.Error
//	if errors.As(err, &perr) && perr.Kind == pql.KindSyntax {
//		// show the parse position to the user
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Engine.Query").
	Op string

	// Kind categorizes the error (e.g., KindSyntax).
	Kind string

	// Err is the underlying error.
	Err error

	// Context carries identifying details such as the snapshot.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pql: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("pql: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("pql: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, so errors.Is(err, query.ErrSyntax)
// and errors.As(err, **executor.Error) see through the wrapper.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches an *Error target by Kind (and Op, when the target sets one), and
// otherwise delegates to the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind && (t.Op == "" || e.Op == t.Op) {
			return true
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	out := *e
	out.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		out.Context[k] = v
	}
	for k, v := range ctx {
		out.Context[k] = v
	}
	return &out
}

func newError(op, kind string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// CloseWithLog closes the resource and logs any failure at warning level.
// A nil logger uses slog.Default().
//
//	defer pql.CloseWithLog(q, logger, "redis queue")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
