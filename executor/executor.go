// Package executor evaluates parsed PQL queries against a configuration graph.
//
// Execution is a filtered Cartesian product: every MATCH variable ranges over
// the nodes of its type, the WHERE filter is applied to each combination and
// the RETURN items are projected from the survivors. Row order is the
// iteration order of the product, with the last MATCH variable varying
// fastest, so the same graph and query always yield the same rows.
package executor

import (
	"context"
	"math"

	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

// cancelCheckInterval is how many combinations are evaluated between context
// checks.
const cancelCheckInterval = 1024

// Options bounds the work a single execution may do. Zero values mean
// unlimited.
type Options struct {
	// MaxCandidates caps the size of the Cartesian product.
	MaxCandidates int

	// MaxMatches caps the number of MATCH clauses.
	MaxMatches int
}

// Row is one result row; values are in column order.
type Row []graph.Value

// Result is the output of a query.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Records returns the rows as column-keyed maps.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for j, col := range r.Columns {
			rec[col] = row[j].Interface()
		}
		out[i] = rec
	}
	return out
}

// Execute runs q against g. Both are only read, so one graph and one query
// may be shared by concurrent executions.
func Execute(ctx context.Context, g *graph.Graph, q *query.Query, opts Options) (*Result, error) {
	plan, err := prepare(q, opts)
	if err != nil {
		return nil, err
	}

	candidates := make([][]*graph.Node, len(plan.types))
	for i, t := range plan.types {
		candidates[i] = g.NodesOfType(t)
	}
	if opts.MaxCandidates > 0 {
		if n := productSize(candidates); n > uint64(opts.MaxCandidates) {
			return nil, newError(ClauseMatch, CodeCandidateLimit,
				"candidate product of %d combinations exceeds the limit of %d", n, opts.MaxCandidates)
		}
	}

	res := &Result{Columns: q.Columns(), Rows: []Row{}}
	var count int64

	err = product(ctx, candidates, func(row []*graph.Node) error {
		if plan.filter != nil {
			ok, err := plan.filter(row)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		if plan.count {
			count++
			return nil
		}
		out := make(Row, len(plan.project))
		for i, p := range plan.project {
			out[i] = p(row)
		}
		res.Rows = append(res.Rows, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if plan.count {
		res.Rows = []Row{{graph.Int(count)}}
	}
	return res, nil
}

// productSize multiplies the candidate counts, saturating at MaxUint64.
func productSize(candidates [][]*graph.Node) uint64 {
	n := uint64(1)
	for _, c := range candidates {
		k := uint64(len(c))
		if k == 0 {
			return 0
		}
		if n > math.MaxUint64/k {
			return math.MaxUint64
		}
		n *= k
	}
	return n
}

// product calls fn for every combination of candidates, last index fastest.
// The row slice is reused between calls.
func product(ctx context.Context, candidates [][]*graph.Node, fn func([]*graph.Node) error) error {
	for _, c := range candidates {
		if len(c) == 0 {
			return nil
		}
	}

	idx := make([]int, len(candidates))
	row := make([]*graph.Node, len(candidates))
	for i, c := range candidates {
		row[i] = c[0]
	}

	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return newError(ClauseMatch, CodeCancelled, "execution interrupted").withCause(err)
			}
		}
		if err := fn(row); err != nil {
			return err
		}

		i := len(candidates) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(candidates[i]) {
				row[i] = candidates[i][idx[i]]
				break
			}
			idx[i] = 0
			row[i] = candidates[i][0]
		}
		if i < 0 {
			return nil
		}
	}
}
