package pql

import (
	"context"

	"github.com/zero-day-ai/pql/cfgtree"
	"github.com/zero-day-ai/pql/executor"
	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

// BuildGraph builds the graph of src as seen from ctx. Entries that cannot be
// typed are dropped and reported as warnings; the error is reserved for an
// invalid context.
func BuildGraph(src cfgtree.Source, ctx graph.Context) (*graph.Graph, []graph.BuildWarning, error) {
	return graph.Build(src, ctx)
}

// Parse parses PQL text. Errors are *query.ParseError and match
// query.ErrSyntax.
func Parse(text string) (*query.Query, error) {
	return query.Parse(text)
}

// Verify reports whether text is a valid query without executing it.
func Verify(text string) error {
	return query.Verify(text)
}

// Execute runs q against g without limits. Errors are *executor.Error and
// match executor.ErrExecution.
func Execute(g *graph.Graph, q *query.Query) (*executor.Result, error) {
	return executor.Execute(context.Background(), g, q, executor.Options{})
}
