package executor

import (
	"regexp"
	"strings"

	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

// compare applies a non-regex operator. Equality is strict: values of
// different kinds are a type mismatch unless one side is null, and numbers
// compare across Int and Float. Ordering with a null operand is false.
func compare(c *query.Comparison, l, r graph.Value) (bool, error) {
	switch c.Op {
	case query.OpEq, query.OpNeq:
		eq, err := equal(c, l, r)
		if err != nil {
			return false, err
		}
		if c.Op == query.OpNeq {
			return !eq, nil
		}
		return eq, nil
	}

	if l.IsNull() || r.IsNull() {
		return false, nil
	}

	var cmp int
	switch {
	case l.IsNumber() && r.IsNumber():
		a, _ := l.AsFloat()
		b, _ := r.AsFloat()
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	case l.Kind() == graph.KindString && r.Kind() == graph.KindString:
		a, _ := l.AsString()
		b, _ := r.AsString()
		cmp = strings.Compare(a, b)
	default:
		return false, newError(ClauseWhere, CodeTypeMismatch,
			"%s: cannot order %s against %s", c, l.Kind(), r.Kind())
	}

	switch c.Op {
	case query.OpLt:
		return cmp < 0, nil
	case query.OpLte:
		return cmp <= 0, nil
	case query.OpGt:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func equal(c *query.Comparison, l, r graph.Value) (bool, error) {
	if l.IsNull() || r.IsNull() {
		return l.IsNull() && r.IsNull(), nil
	}
	if l.IsNumber() && r.IsNumber() {
		return l.Equal(r), nil
	}
	if l.Kind() != r.Kind() {
		return false, newError(ClauseWhere, CodeTypeMismatch,
			"%s: cannot compare %s with %s", c, l.Kind(), r.Kind())
	}
	return l.Equal(r), nil
}

func matchRegex(c *query.Comparison, v graph.Value, re *regexp.Regexp) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	s, ok := v.AsString()
	if !ok {
		return false, mismatch(c, graph.KindString, v)
	}
	return re.MatchString(s), nil
}

func mismatch(c *query.Comparison, want graph.Kind, got graph.Value) error {
	return newError(ClauseWhere, CodeTypeMismatch, "%s: expected %s, got %s", c, want, got.Kind())
}
