package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/pql/graph"
)

func TestParse_Basic(t *testing.T) {
	q, err := Parse(`MATCH (a:address) WHERE a.type == "ip-netmask" RETURN a.name, a.value`)
	require.NoError(t, err)

	require.Len(t, q.Matches, 1)
	assert.Equal(t, "a", q.Matches[0].Variable)
	assert.Equal(t, "address", q.Matches[0].NodeType)

	cmp, ok := q.Filter.(*Comparison)
	require.True(t, ok)
	assert.Equal(t, "a", cmp.Left.Variable)
	assert.Equal(t, []string{"type"}, cmp.Left.Path)
	assert.Equal(t, OpEq, cmp.Op)
	lit, ok := cmp.Right.(Literal)
	require.True(t, ok)
	assert.Equal(t, graph.String("ip-netmask"), lit.Value)
	assert.Equal(t, Position{Offset: 34, Line: 1, Column: 35}, lit.Pos)

	assert.Equal(t, []string{"a.name", "a.value"}, q.Columns())
	assert.False(t, q.IsCount())
}

func TestParse_MultipleMatches(t *testing.T) {
	q, err := Parse(`
MATCH (r:security-rule)
MATCH (a:address)
WHERE r.edges_out CONTAINS {target: a.id, relation: "uses-source"}
RETURN r.name AS rule, a.name AS address`)
	require.NoError(t, err)

	require.Len(t, q.Matches, 2)
	assert.Equal(t, "security-rule", q.Matches[0].NodeType)
	assert.Equal(t, "address", q.Matches[1].NodeType)

	et, ok := q.Filter.(*EdgeTest)
	require.True(t, ok)
	assert.Equal(t, "r", et.Variable)
	assert.Equal(t, DirOut, et.Direction)
	assert.Equal(t, "uses-source", et.Relation)
	other, ok := et.Other.(PropertyRef)
	require.True(t, ok)
	assert.Equal(t, "a", other.Variable)
	assert.Equal(t, []string{"id"}, other.Path)

	assert.Equal(t, []string{"rule", "address"}, q.Columns())
}

func TestParse_EdgesIn(t *testing.T) {
	q, err := Parse(`MATCH (a:address) MATCH (g:address-group)
WHERE a.edges_in CONTAINS {source: g.id} RETURN g.name`)
	require.NoError(t, err)

	et, ok := q.Filter.(*EdgeTest)
	require.True(t, ok)
	assert.Equal(t, DirIn, et.Direction)
	assert.Empty(t, et.Relation)
}

func TestParse_EdgeTargetLiteral(t *testing.T) {
	q, err := Parse(`MATCH (r:security-rule) WHERE r.edges_out CONTAINS {relation: "uses-service", target: "service:web"} RETURN r.name`)
	require.NoError(t, err)

	et := q.Filter.(*EdgeTest)
	lit, ok := et.Other.(Literal)
	require.True(t, ok)
	assert.Equal(t, graph.String("service:web"), lit.Value)
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		where string
		want  string
	}{
		{
			name:  "and binds tighter than or",
			where: `a.x == 1 OR a.y == 2 AND a.z == 3`,
			want:  `(a.x == 1 OR (a.y == 2 AND a.z == 3))`,
		},
		{
			name:  "not binds tighter than and",
			where: `NOT a.x == 1 AND a.y == 2`,
			want:  `(NOT a.x == 1 AND a.y == 2)`,
		},
		{
			name:  "parentheses",
			where: `(a.x == 1 OR a.y == 2) AND a.z == 3`,
			want:  `((a.x == 1 OR a.y == 2) AND a.z == 3)`,
		},
		{
			name:  "left associative",
			where: `a.x == 1 AND a.y == 2 AND a.z == 3`,
			want:  `((a.x == 1 AND a.y == 2) AND a.z == 3)`,
		},
		{
			name:  "not over group",
			where: `NOT (a.x == 1 OR a.y == 2)`,
			want:  `NOT (a.x == 1 OR a.y == 2)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse("MATCH (a:tag) WHERE " + tt.where + " RETURN a.name")
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Filter.String())
		})
	}
}

func TestParse_Operands(t *testing.T) {
	tests := []struct {
		name  string
		where string
		want  graph.Value
		regex bool
	}{
		{name: "int", where: "a.risk >= 4", want: graph.Int(4)},
		{name: "negative", where: "a.risk > -1", want: graph.Int(-1)},
		{name: "float", where: "a.risk < 4.5", want: graph.Float(4.5)},
		{name: "true", where: "a.disabled == TRUE", want: graph.Bool(true)},
		{name: "false", where: "a.disabled != false", want: graph.Bool(false)},
		{name: "null", where: "a.description == null", want: graph.Null()},
		{name: "regex string", where: `a.name =~ "web-.*"`, want: graph.String("web-.*")},
		{name: "regex literal", where: `a.name =~ /web\/.*/`, want: graph.String("web/.*"), regex: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse("MATCH (a:application) WHERE " + tt.where + " RETURN a.name")
			require.NoError(t, err)
			cmp := q.Filter.(*Comparison)
			lit, ok := cmp.Right.(Literal)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(lit.Value), "got %s", lit.Value)
			assert.Equal(t, tt.want.Kind(), lit.Value.Kind())
			assert.Equal(t, tt.regex, lit.Regex)
		})
	}
}

func TestParse_PropertyComparison(t *testing.T) {
	q, err := Parse(`MATCH (a:address) MATCH (b:address) WHERE a.value == b.value AND a.id != b.id RETURN a.name, b.name`)
	require.NoError(t, err)

	and := q.Filter.(*Binary)
	left := and.Left.(*Comparison)
	ref, ok := left.Right.(PropertyRef)
	require.True(t, ok)
	assert.Equal(t, "b", ref.Variable)
}

func TestParse_NestedPath(t *testing.T) {
	q, err := Parse(`MATCH (r:nat-rule) WHERE r.meta.owner == "net" RETURN r.meta.owner`)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta", "owner"}, q.Filter.(*Comparison).Left.Path)
	assert.Equal(t, []string{"r.meta.owner"}, q.Columns())
}

func TestParse_Returns(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		q, err := Parse("MATCH (a:address) RETURN COUNT(*)")
		require.NoError(t, err)
		assert.True(t, q.IsCount())
		assert.Equal(t, []string{"COUNT(*)"}, q.Columns())
	})

	t.Run("count alias", func(t *testing.T) {
		q, err := Parse("MATCH (a:address) RETURN count(*) AS total")
		require.NoError(t, err)
		assert.True(t, q.IsCount())
		assert.Equal(t, []string{"total"}, q.Columns())
	})

	t.Run("bare variable", func(t *testing.T) {
		q, err := Parse("MATCH (a:address) RETURN a")
		require.NoError(t, err)
		require.Len(t, q.Returns, 1)
		assert.Equal(t, ReturnVariable, q.Returns[0].Kind)
		assert.Equal(t, []string{"a"}, q.Columns())
	})

	t.Run("keyword as property", func(t *testing.T) {
		q, err := Parse("MATCH (a:address) RETURN a.count")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.count"}, q.Columns())
	})
}

func TestParse_StringRoundTrip(t *testing.T) {
	text := `MATCH (r:security-rule) MATCH (a:address) WHERE (r.edges_out CONTAINS {target: a.id, relation: "uses-source"} AND NOT a.value =~ /10\/8/) RETURN r.name AS rule, COUNT(*)`
	_, err := Parse(text)
	require.Error(t, err, "COUNT mixed with other items")

	text = `MATCH (r:security-rule) MATCH (a:address) WHERE (r.edges_out CONTAINS {target: a.id, relation: "uses-source"} AND NOT a.value =~ /10\/8/) RETURN r.name AS rule, a`
	q, err := Parse(text)
	require.NoError(t, err)

	again, err := Parse(q.String())
	require.NoError(t, err)
	assert.Equal(t, q.String(), again.String())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "empty", input: "", wantMsg: "must start with MATCH"},
		{name: "no match", input: "RETURN a.name", wantMsg: "must start with MATCH"},
		{name: "missing return", input: "MATCH (a:tag)", wantMsg: "expected RETURN"},
		{name: "missing node type", input: "MATCH (a) RETURN a", wantMsg: "requires a node type"},
		{name: "relationship pattern", input: "MATCH (a:address-group)-[:contains]->(b:address) RETURN a", wantMsg: "relationship patterns"},
		{name: "reverse relationship", input: "MATCH (a:address)<-[:contains]-(b:address-group) RETURN a", wantMsg: "relationship patterns"},
		{name: "comma patterns", input: "MATCH (a:tag), (b:tag) RETURN a", wantMsg: "comma-separated"},
		{name: "inline map", input: `MATCH (a:tag {name: "x"}) RETURN a`, wantMsg: "inline property maps"},
		{name: "duplicate variable", input: "MATCH (a:tag) MATCH (a:address) RETURN a", wantMsg: "already bound"},
		{name: "unbound in where", input: "MATCH (a:tag) WHERE b.name == 1 RETURN a", wantMsg: "not bound"},
		{name: "unbound in return", input: "MATCH (a:tag) RETURN b.name", wantMsg: "not bound"},
		{name: "bare variable in where", input: "MATCH (a:tag) WHERE a == 1 RETURN a", wantMsg: "expected '.'"},
		{name: "single equals", input: `MATCH (a:tag) WHERE a.name = "x" RETURN a`, wantMsg: "'=='"},
		{name: "missing operator", input: `MATCH (a:tag) WHERE a.name "x" RETURN a`, wantMsg: "comparison operator"},
		{name: "missing operand", input: `MATCH (a:tag) WHERE a.name == RETURN a`, wantMsg: "literal or property"},
		{name: "string contains", input: `MATCH (a:tag) WHERE a.name CONTAINS "web" RETURN a`, wantMsg: "=~"},
		{name: "starts with", input: `MATCH (a:tag) WHERE a.name STARTS WITH "web" RETURN a`, wantMsg: "=~"},
		{name: "ends with", input: `MATCH (a:tag) WHERE a.name ENDS WITH "web" RETURN a`, wantMsg: "=~"},
		{name: "in list", input: `MATCH (a:tag) WHERE a.name IN ["x"] RETURN a`, wantMsg: "not supported"},
		{name: "is null", input: `MATCH (a:tag) WHERE a.name IS NULL RETURN a`, wantMsg: "not supported"},
		{name: "regex on number", input: `MATCH (a:tag) WHERE a.name =~ 5 RETURN a`, wantMsg: "string or regex literal"},
		{name: "regex literal with eq", input: `MATCH (a:tag) WHERE a.name == /x/ RETURN a`, wantMsg: "only valid with =~"},
		{name: "edges without contains", input: `MATCH (a:tag) WHERE a.edges_out == "x" RETURN a`, wantMsg: "CONTAINS"},
		{name: "edges as operand", input: `MATCH (a:tag) MATCH (b:tag) WHERE a.id == b.edges_in RETURN a`, wantMsg: "CONTAINS"},
		{name: "edges returned", input: `MATCH (a:tag) RETURN a.edges_out`, wantMsg: "cannot be returned"},
		{name: "edges nested", input: `MATCH (a:tag) RETURN a.meta.edges_out`, wantMsg: "directly on a variable"},
		{name: "edges sub-field", input: `MATCH (a:tag) WHERE a.edges_out.x CONTAINS {target: "x"} RETURN a`, wantMsg: "no sub-fields"},
		{name: "target on edges_in", input: `MATCH (a:tag) MATCH (b:tag) WHERE a.edges_in CONTAINS {target: b.id} RETURN a`, wantMsg: "unknown key"},
		{name: "source on edges_out", input: `MATCH (a:tag) MATCH (b:tag) WHERE a.edges_out CONTAINS {source: b.id} RETURN a`, wantMsg: "unknown key"},
		{name: "missing target", input: `MATCH (a:tag) WHERE a.edges_out CONTAINS {relation: "contains"} RETURN a`, wantMsg: "requires a target"},
		{name: "duplicate key", input: `MATCH (a:tag) MATCH (b:tag) WHERE a.edges_out CONTAINS {target: b.id, target: b.id} RETURN a`, wantMsg: "duplicate key"},
		{name: "relation not string", input: `MATCH (a:tag) MATCH (b:tag) WHERE a.edges_out CONTAINS {target: b.id, relation: b.name} RETURN a`, wantMsg: "relation name"},
		{name: "numeric target", input: `MATCH (a:tag) WHERE a.edges_out CONTAINS {target: 3} RETURN a`, wantMsg: "node id string"},
		{name: "unclosed paren", input: `MATCH (a:tag) WHERE (a.name == "x" RETURN a`, wantMsg: "to close"},
		{name: "count with others", input: "MATCH (a:tag) RETURN a.name, COUNT(*)", wantMsg: "cannot be combined"},
		{name: "duplicate alias", input: "MATCH (a:tag) MATCH (b:tag) RETURN a.name AS x, b.name AS x", wantMsg: `duplicate column "x"`},
		{name: "duplicate property", input: "MATCH (a:tag) RETURN a.name, a.name", wantMsg: `duplicate column "a.name"`},
		{name: "count without star", input: "MATCH (a:tag) RETURN COUNT(a)", wantMsg: "COUNT(*)"},
		{name: "trailing tokens", input: "MATCH (a:tag) RETURN a.name LIMIT 5", wantMsg: "after RETURN list"},
		{name: "trailing comma", input: "MATCH (a:tag) RETURN a.name,", wantMsg: "in RETURN"},
		{name: "alias missing", input: "MATCH (a:tag) RETURN a.name AS", wantMsg: "after AS"},
		{name: "unterminated string", input: `MATCH (a:tag) WHERE a.name == "x RETURN a`, wantMsg: "unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, q)
			assert.True(t, errors.Is(err, ErrSyntax))

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Error(), tt.wantMsg)
			assert.GreaterOrEqual(t, perr.Pos.Line, 1)
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("MATCH (a:tag)\nWHERE a.name = \"x\"\nRETURN a")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Pos.Line)
	assert.Equal(t, 14, perr.Pos.Column)
	assert.Equal(t, "=", perr.Token)
}

func TestVerify(t *testing.T) {
	assert.NoError(t, Verify("MATCH (a:tag) RETURN a.name"))
	assert.ErrorIs(t, Verify("MATCH (a:tag) RETURN"), ErrSyntax)
}
