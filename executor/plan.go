package executor

import (
	"fmt"
	"regexp"

	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

type (
	predicate func(row []*graph.Node) (bool, error)
	accessor  func(row []*graph.Node) graph.Value
)

// plan is a query compiled against the node schemas: variables resolved to
// row positions, literal regexes compiled, the filter turned into closures.
type plan struct {
	types   []graph.NodeType
	slots   map[string]int
	filter  predicate
	project []accessor
	count   bool
}

func prepare(q *query.Query, opts Options) (*plan, error) {
	if opts.MaxMatches > 0 && len(q.Matches) > opts.MaxMatches {
		return nil, newError(ClauseMatch, CodeMatchLimit,
			"query has %d MATCH clauses, the limit is %d", len(q.Matches), opts.MaxMatches)
	}

	p := &plan{
		types: make([]graph.NodeType, len(q.Matches)),
		slots: make(map[string]int, len(q.Matches)),
		count: q.IsCount(),
	}
	for i, m := range q.Matches {
		t, err := graph.ParseNodeType(m.NodeType)
		if err != nil {
			return nil, newError(ClauseMatch, CodeUnknownNodeType, "unknown node type %q for variable %s", m.NodeType, m.Variable)
		}
		p.types[i] = t
		p.slots[m.Variable] = i
	}

	if q.Filter != nil {
		f, err := p.compileExpr(q.Filter)
		if err != nil {
			return nil, err
		}
		p.filter = f
	}

	if !p.count {
		for _, r := range q.Returns {
			a, err := p.compileReturn(r)
			if err != nil {
				return nil, err
			}
			p.project = append(p.project, a)
		}
	}
	return p, nil
}

func (p *plan) slot(clause, variable string) (int, error) {
	i, ok := p.slots[variable]
	if !ok {
		return 0, newError(clause, CodeUnknownField, "variable %q is not bound", variable)
	}
	return i, nil
}

func (p *plan) compileRef(clause string, ref query.PropertyRef) (accessor, error) {
	i, err := p.slot(clause, ref.Variable)
	if err != nil {
		return nil, err
	}

	field := ref.Field()
	switch field {
	case query.FieldID, query.FieldNodeType:
		if len(ref.Path) > 1 {
			return nil, newError(clause, CodeUnknownField, "%s has no sub-fields", ref)
		}
		if field == query.FieldID {
			return func(row []*graph.Node) graph.Value { return graph.String(row[i].ID) }, nil
		}
		return func(row []*graph.Node) graph.Value { return graph.String(string(row[i].Type)) }, nil
	}

	schema, _ := graph.SchemaFor(p.types[i])
	if !schema.Has(field) {
		return nil, newError(clause, CodeUnknownField, "%s: %s has no field %q", ref, p.types[i], field)
	}
	path := ref.Path
	return func(row []*graph.Node) graph.Value { return row[i].Get(path...) }, nil
}

func (p *plan) compileOperand(op query.Operand) (accessor, error) {
	switch o := op.(type) {
	case query.Literal:
		v := o.Value
		return func([]*graph.Node) graph.Value { return v }, nil
	case query.PropertyRef:
		return p.compileRef(ClauseWhere, o)
	default:
		return nil, fmt.Errorf("unsupported operand %T", op)
	}
}

func (p *plan) compileExpr(e query.Expr) (predicate, error) {
	switch x := e.(type) {
	case *query.Binary:
		left, err := p.compileExpr(x.Left)
		if err != nil {
			return nil, err
		}
		right, err := p.compileExpr(x.Right)
		if err != nil {
			return nil, err
		}
		if x.Op == query.LogicOr {
			return func(row []*graph.Node) (bool, error) {
				ok, err := left(row)
				if err != nil || ok {
					return ok, err
				}
				return right(row)
			}, nil
		}
		return func(row []*graph.Node) (bool, error) {
			ok, err := left(row)
			if err != nil || !ok {
				return false, err
			}
			return right(row)
		}, nil

	case *query.Not:
		inner, err := p.compileExpr(x.X)
		if err != nil {
			return nil, err
		}
		return func(row []*graph.Node) (bool, error) {
			ok, err := inner(row)
			return !ok, err
		}, nil

	case *query.Comparison:
		return p.compileComparison(x)

	case *query.EdgeTest:
		return p.compileEdgeTest(x)

	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func (p *plan) compileComparison(c *query.Comparison) (predicate, error) {
	left, err := p.compileRef(ClauseWhere, c.Left)
	if err != nil {
		return nil, err
	}

	if c.Op == query.OpRegex {
		if lit, ok := c.Right.(query.Literal); ok {
			pattern, _ := lit.Value.AsString()
			re, err := compileRegex(pattern)
			if err != nil {
				return nil, err
			}
			return func(row []*graph.Node) (bool, error) {
				return matchRegex(c, left(row), re)
			}, nil
		}
		right, err := p.compileOperand(c.Right)
		if err != nil {
			return nil, err
		}
		cache := map[string]*regexp.Regexp{}
		return func(row []*graph.Node) (bool, error) {
			pv := right(row)
			if pv.IsNull() {
				return false, nil
			}
			pattern, ok := pv.AsString()
			if !ok {
				return false, mismatch(c, graph.KindString, pv)
			}
			re, hit := cache[pattern]
			if !hit {
				var err error
				if re, err = compileRegex(pattern); err != nil {
					return false, err
				}
				cache[pattern] = re
			}
			return matchRegex(c, left(row), re)
		}, nil
	}

	right, err := p.compileOperand(c.Right)
	if err != nil {
		return nil, err
	}
	return func(row []*graph.Node) (bool, error) {
		return compare(c, left(row), right(row))
	}, nil
}

func (p *plan) compileEdgeTest(t *query.EdgeTest) (predicate, error) {
	i, err := p.slot(ClauseWhere, t.Variable)
	if err != nil {
		return nil, err
	}
	other, err := p.compileOperand(t.Other)
	if err != nil {
		return nil, err
	}
	rel := graph.Relation(t.Relation)
	return func(row []*graph.Node) (bool, error) {
		ov := other(row)
		if ov.IsNull() {
			return false, nil
		}
		id, ok := ov.AsString()
		if !ok {
			return false, newError(ClauseWhere, CodeTypeMismatch, "%s: node id must be a string, got %s", t, ov.Kind())
		}
		if t.Direction == query.DirIn {
			return row[i].HasEdgeFrom(id, rel), nil
		}
		return row[i].HasEdgeTo(id, rel), nil
	}, nil
}

func (p *plan) compileReturn(r query.ReturnItem) (accessor, error) {
	switch r.Kind {
	case query.ReturnVariable:
		i, err := p.slot(ClauseReturn, r.Variable)
		if err != nil {
			return nil, err
		}
		return func(row []*graph.Node) graph.Value { return nodeMap(row[i]) }, nil
	case query.ReturnProperty:
		return p.compileRef(ClauseReturn, *r.Property)
	default:
		return nil, newError(ClauseReturn, CodeUnknownField, "COUNT(*) cannot be combined with other return items")
	}
}

// nodeMap renders a node as a map value: id and node_type first, then the
// node's properties in insertion order.
func nodeMap(n *graph.Node) graph.Value {
	m := graph.NewProperties().
		Set(query.FieldID, graph.String(n.ID)).
		Set(query.FieldNodeType, graph.String(string(n.Type)))
	for _, k := range n.Properties.Keys() {
		v, _ := n.Properties.Get(k)
		m.Set(k, v)
	}
	return graph.Map(m)
}

// compileRegex anchors pattern so that =~ is a full match.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, newError(ClauseWhere, CodeInvalidRegex, "invalid regular expression %q", pattern).withCause(err)
	}
	return re, nil
}
