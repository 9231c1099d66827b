package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/pql/cfgtree"
	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

func vsysCtx() graph.Context {
	return graph.Context{DeviceKind: graph.DeviceFirewall, Scope: cfgtree.ScopeVsys, ScopeName: "vsys1", Version: "10.1"}
}

func entry(name string, fields map[string]any) cfgtree.Entry {
	return cfgtree.NewEntry(name, fields)
}

func buildGraph(t *testing.T, tree *cfgtree.Tree) *graph.Graph {
	t.Helper()
	g, _, err := graph.Build(tree, vsysCtx())
	require.NoError(t, err)
	return g
}

// fixture is a small firewall: three addresses, a group with a missing
// member, two applications and three security rules.
func fixture(t *testing.T) *graph.Graph {
	vsys := cfgtree.Vsys("vsys1")
	tree := cfgtree.New().WithSnapshot("exec-test").
		Add(vsys, "address",
			entry("web", map[string]any{"ip-netmask": "10.0.0.1/32"}),
			entry("lan", map[string]any{"ip-netmask": "10.1.5"}),
			entry("far", map[string]any{"ip-netmask": "1021.5"}),
		).
		Add(vsys, "address-group",
			entry("grp", map[string]any{"static": []any{"web", "ghost"}}),
		).
		Add(vsys, "application",
			entry("mysql", map[string]any{"category": "business-systems", "risk": "4"}),
			entry("ping", map[string]any{"category": "networking", "risk": "2"}),
		).
		Add(vsys, "rulebase/security",
			entry("allow-web", map[string]any{
				"from": []any{"Trust"}, "to": []any{"Untrust"},
				"source": []any{"any"}, "destination": []any{"grp"},
				"service": []any{"any"}, "application": []any{"any"},
				"action": "allow",
			}),
			entry("allow-db", map[string]any{
				"from": []any{"DMZ"}, "to": []any{"Trust"},
				"source": []any{"lan"}, "destination": []any{"web"},
				"service": []any{"application-default"}, "application": []any{"mysql"},
				"action": "allow", "description": "db access",
			}),
			entry("deny-all", map[string]any{
				"from": []any{"Trust", "DMZ"}, "to": []any{"any"},
				"source": []any{"any"}, "destination": []any{"any"},
				"service": []any{"any"}, "application": []any{"any"},
				"action": "deny", "disabled": "yes",
			}),
		)
	return buildGraph(t, tree)
}

func run(t *testing.T, g *graph.Graph, text string) (*Result, error) {
	t.Helper()
	q, err := query.Parse(text)
	require.NoError(t, err)
	return Execute(context.Background(), g, q, Options{})
}

func mustRun(t *testing.T, g *graph.Graph, text string) *Result {
	t.Helper()
	res, err := run(t, g, text)
	require.NoError(t, err)
	return res
}

func column(res *Result, col int) []string {
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		s, _ := row[col].AsString()
		out = append(out, s)
	}
	return out
}

func TestExecute_ScenarioGroupMembership(t *testing.T) {
	tree := cfgtree.New().
		Add(cfgtree.Vsys("vsys1"), "address",
			entry("web", map[string]any{"ip-netmask": "10.0.0.1/32"})).
		Add(cfgtree.Vsys("vsys1"), "address-group",
			entry("grp", map[string]any{"static": []any{"web"}}))
	g := buildGraph(t, tree)

	res := mustRun(t, g, `MATCH (g:address-group) MATCH (a:address)
WHERE g.edges_out CONTAINS {target: a.id, relation: "contains"}
RETURN g.name, a.name`)

	assert.Equal(t, []string{"g.name", "a.name"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, Row{graph.String("grp"), graph.String("web")}, res.Rows[0])
}

func TestExecute_ScenarioRuleZone(t *testing.T) {
	g := fixture(t)
	res := mustRun(t, g, `MATCH (r:security-rule) WHERE r.from == "Trust" RETURN r.name`)
	assert.Equal(t, []string{"allow-web"}, column(res, 0), "multi-zone rules are joined and do not match a single zone")
}

func TestExecute_ScenarioPlaceholder(t *testing.T) {
	g := fixture(t)
	res := mustRun(t, g, `MATCH (a:address) WHERE a.placeholder == true RETURN a.name`)
	assert.Equal(t, []string{"ghost"}, column(res, 0))
}

func TestExecute_CartesianOrder(t *testing.T) {
	g := fixture(t)
	res := mustRun(t, g, `MATCH (x:application) MATCH (y:address-group) MATCH (z:application) RETURN x.name, z.name`)

	require.Len(t, res.Rows, 4)
	got := make([][2]string, len(res.Rows))
	for i, row := range res.Rows {
		x, _ := row[0].AsString()
		z, _ := row[1].AsString()
		got[i] = [2]string{x, z}
	}
	assert.Equal(t, [][2]string{
		{"mysql", "mysql"}, {"mysql", "ping"},
		{"ping", "mysql"}, {"ping", "ping"},
	}, got)
}

func TestExecute_CartesianBound(t *testing.T) {
	g := fixture(t)

	addrs := len(g.NodesOfType(graph.NodeAddress))
	rules := len(g.NodesOfType(graph.NodeSecurityRule))

	res := mustRun(t, g, `MATCH (a:address) MATCH (r:security-rule) RETURN a.name, r.name`)
	assert.Len(t, res.Rows, addrs*rules)

	res = mustRun(t, g, `MATCH (a:address) MATCH (r:security-rule) WHERE r.action == "deny" RETURN a.name`)
	assert.LessOrEqual(t, len(res.Rows), addrs*rules)
	assert.Len(t, res.Rows, addrs)
}

func TestExecute_EmptyType(t *testing.T) {
	g := fixture(t)

	res := mustRun(t, g, `MATCH (n:nat-rule) MATCH (a:address) RETURN n.name, a.name`)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)

	res = mustRun(t, g, `MATCH (n:nat-rule) RETURN COUNT(*)`)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, graph.Int(0), res.Rows[0][0])
}

func TestExecute_Count(t *testing.T) {
	g := fixture(t)

	res := mustRun(t, g, `MATCH (r:security-rule) WHERE r.action == "allow" RETURN COUNT(*) AS allowed`)
	assert.Equal(t, []string{"allowed"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, Row{graph.Int(2)}, res.Rows[0])

	rows := mustRun(t, g, `MATCH (r:security-rule) WHERE r.action == "allow" RETURN r.name`)
	assert.Equal(t, int64(rows.Len()), mustInt(t, res.Rows[0][0]))
}

func mustInt(t *testing.T, v graph.Value) int64 {
	t.Helper()
	i, ok := v.AsInt()
	require.True(t, ok)
	return i
}

func TestExecute_RegexIsFullMatch(t *testing.T) {
	g := fixture(t)

	tests := []struct {
		name  string
		where string
		want  []string
	}{
		{name: "escaped dots", where: `a.value =~ "10\\.1\\..*"`, want: []string{"lan"}},
		{name: "unescaped dots match more", where: `a.value =~ "10.1..*"`, want: []string{"lan", "far"}},
		{name: "regex literal", where: `a.value =~ /10\.1\..*/`, want: []string{"lan"}},
		{name: "anchored", where: `a.value =~ "0\\.1"`, want: []string{}},
		{name: "slash in literal", where: `a.value =~ /10\.0\.0\.1\/32/`, want: []string{"web"}},
		{name: "alternation is grouped", where: `a.name =~ "web|lan"`, want: []string{"web", "lan"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, g, "MATCH (a:address) WHERE "+tt.where+" RETURN a.name")
			assert.Equal(t, tt.want, column(res, 0))
		})
	}
}

func TestExecute_RegexAgainstProperty(t *testing.T) {
	g := fixture(t)
	res := mustRun(t, g, `MATCH (a:address) MATCH (b:address) WHERE a.name =~ b.name AND a.placeholder != true RETURN a.name, b.name`)
	for _, row := range res.Rows {
		assert.Equal(t, row[0], row[1])
	}
	assert.Len(t, res.Rows, 3)
}

func TestExecute_NullSafety(t *testing.T) {
	g := fixture(t)

	tests := []struct {
		name  string
		where string
		want  []string
	}{
		{name: "missing equals null", where: `a.value == null`, want: []string{"ghost"}},
		{name: "present not null", where: `a.value != null`, want: []string{"web", "lan", "far"}},
		{name: "missing compared to string", where: `a.value == "10.1.5"`, want: []string{"lan"}},
		{name: "missing not equal to string", where: `a.value != "10.1.5"`, want: []string{"web", "far", "ghost"}},
		{name: "regex on missing", where: `a.value =~ ".*"`, want: []string{"web", "lan", "far"}},
		{name: "ordering on missing", where: `a.value > "0"`, want: []string{"web", "lan", "far"}},
		{name: "unset flag", where: `a.placeholder == null`, want: []string{"web", "lan", "far"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, g, "MATCH (a:address) WHERE "+tt.where+" RETURN a.name")
			assert.Equal(t, tt.want, column(res, 0))
		})
	}
}

func TestExecute_Comparisons(t *testing.T) {
	g := fixture(t)

	tests := []struct {
		name  string
		text  string
		want  []string
	}{
		{name: "int greater", text: `MATCH (p:application) WHERE p.risk > 3 RETURN p.name`, want: []string{"mysql"}},
		{name: "int vs float", text: `MATCH (p:application) WHERE p.risk <= 2.0 RETURN p.name`, want: []string{"ping"}},
		{name: "int equality across kinds", text: `MATCH (p:application) WHERE p.risk == 4.0 RETURN p.name`, want: []string{"mysql"}},
		{name: "string ordering", text: `MATCH (p:application) WHERE p.category < "c" RETURN p.name`, want: []string{"mysql"}},
		{name: "bool", text: `MATCH (r:security-rule) WHERE r.disabled == true RETURN r.name`, want: []string{"deny-all"}},
		{name: "not", text: `MATCH (r:security-rule) WHERE NOT r.disabled == true RETURN r.name`, want: []string{"allow-web", "allow-db"}},
		{name: "or", text: `MATCH (r:security-rule) WHERE r.from == "DMZ" OR r.disabled == true RETURN r.name`, want: []string{"allow-db", "deny-all"}},
		{name: "any flags", text: `MATCH (r:security-rule) WHERE r.has_any_source == false RETURN r.name`, want: []string{"allow-db"}},
		{name: "application default", text: `MATCH (r:security-rule) WHERE r.application_default == true RETURN r.name`, want: []string{"allow-db"}},
		{name: "id", text: `MATCH (a:address) WHERE a.id == "address:web" RETURN a.name`, want: []string{"web"}},
		{name: "node type", text: `MATCH (a:address-group) WHERE a.node_type == "address-group" RETURN a.name`, want: []string{"grp"}},
		{name: "property to property", text: `MATCH (r:security-rule) MATCH (s:security-rule) WHERE r.to == s.from AND r.id != s.id RETURN r.name`, want: []string{"allow-db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, g, tt.text)
			assert.Equal(t, tt.want, column(res, 0))
		})
	}
}

func TestExecute_EdgeTests(t *testing.T) {
	g := fixture(t)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "uses source",
			text: `MATCH (r:security-rule) MATCH (a:address) WHERE r.edges_out CONTAINS {target: a.id, relation: "uses-source"} RETURN a.name`,
			want: []string{"lan"},
		},
		{
			name: "any relation",
			text: `MATCH (r:security-rule) MATCH (a:address) WHERE r.edges_out CONTAINS {target: a.id} RETURN a.name`,
			want: []string{"web", "lan"},
		},
		{
			name: "incoming",
			text: `MATCH (a:address) MATCH (g:address-group) WHERE a.edges_in CONTAINS {source: g.id, relation: "contains"} RETURN a.name`,
			want: []string{"web", "ghost"},
		},
		{
			name: "literal id",
			text: `MATCH (r:security-rule) WHERE r.edges_out CONTAINS {target: "application:mysql"} RETURN r.name`,
			want: []string{"allow-db"},
		},
		{
			name: "unknown relation matches nothing",
			text: `MATCH (r:security-rule) MATCH (a:address) WHERE r.edges_out CONTAINS {target: a.id, relation: "uses-magic"} RETURN a.name`,
			want: []string{},
		},
		{
			name: "negated",
			text: `MATCH (a:address) MATCH (g:address-group) WHERE NOT a.edges_in CONTAINS {source: g.id} RETURN a.name`,
			want: []string{"lan", "far"},
		},
		{
			name: "any produces no edges",
			text: `MATCH (r:security-rule) WHERE r.has_any_source == true AND r.edges_out CONTAINS {target: "address:web", relation: "uses-source"} RETURN r.name`,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, g, tt.text)
			assert.Equal(t, tt.want, column(res, 0))
		})
	}
}

func TestExecute_ReturnVariable(t *testing.T) {
	g := fixture(t)
	res := mustRun(t, g, `MATCH (a:address) WHERE a.name == "web" RETURN a`)

	require.Len(t, res.Rows, 1)
	m, ok := res.Rows[0][0].AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"id", "node_type"}, m.Keys()[:2])

	id, _ := m.Get("id")
	assert.Equal(t, graph.String("address:web"), id)
	value, _ := m.Get("value")
	assert.Equal(t, graph.String("10.0.0.1/32"), value)
}

func TestExecute_ReturnMissingPropertyIsNull(t *testing.T) {
	g := fixture(t)
	res := mustRun(t, g, `MATCH (a:address) WHERE a.name == "ghost" RETURN a.name AS name, a.value AS value`)

	assert.Equal(t, []string{"name", "value"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0][1].IsNull())
	assert.Equal(t, []map[string]any{{"name": "ghost", "value": nil}}, res.Records())
}

func TestExecute_Errors(t *testing.T) {
	g := fixture(t)

	tests := []struct {
		name   string
		text   string
		code   string
		clause string
	}{
		{name: "unknown node type", text: `MATCH (a:widget) RETURN a.name`, code: CodeUnknownNodeType, clause: ClauseMatch},
		{name: "unknown field in where", text: `MATCH (a:address) WHERE a.colour == "red" RETURN a.name`, code: CodeUnknownField, clause: ClauseWhere},
		{name: "unknown field in return", text: `MATCH (a:address) RETURN a.action`, code: CodeUnknownField, clause: ClauseReturn},
		{name: "unknown field on right", text: `MATCH (a:address) MATCH (b:tag) WHERE a.name == b.value RETURN a.name`, code: CodeUnknownField, clause: ClauseWhere},
		{name: "id sub-field", text: `MATCH (a:address) RETURN a.id.x`, code: CodeUnknownField, clause: ClauseReturn},
		{name: "invalid regex", text: `MATCH (a:address) WHERE a.name =~ "web(" RETURN a.name`, code: CodeInvalidRegex, clause: ClauseWhere},
		{name: "string vs int", text: `MATCH (a:address) WHERE a.name == 5 RETURN a.name`, code: CodeTypeMismatch, clause: ClauseWhere},
		{name: "bool vs string", text: `MATCH (r:security-rule) WHERE r.disabled == "yes" RETURN r.name`, code: CodeTypeMismatch, clause: ClauseWhere},
		{name: "ordering bools", text: `MATCH (r:security-rule) WHERE r.disabled > false RETURN r.name`, code: CodeTypeMismatch, clause: ClauseWhere},
		{name: "regex on int", text: `MATCH (p:application) WHERE p.risk =~ "4" RETURN p.name`, code: CodeTypeMismatch, clause: ClauseWhere},
		{name: "regex property not string", text: `MATCH (p:application) WHERE p.name =~ p.risk RETURN p.name`, code: CodeTypeMismatch, clause: ClauseWhere},
		{name: "edge target not string", text: `MATCH (p:application) MATCH (q:application) WHERE p.edges_out CONTAINS {target: q.risk} RETURN p.name`, code: CodeTypeMismatch, clause: ClauseWhere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, g, tt.text)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrExecution))
			assert.False(t, errors.Is(err, query.ErrSyntax))

			var execErr *Error
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.code, execErr.Code)
			assert.Equal(t, tt.clause, execErr.Clause)
		})
	}
}

func TestExecute_InvalidRegexHasCause(t *testing.T) {
	g := fixture(t)
	_, err := run(t, g, `MATCH (a:address) WHERE a.name =~ /[a-/ RETURN a.name`)

	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.NotNil(t, execErr.Cause)
	assert.True(t, errors.Is(err, &Error{Code: CodeInvalidRegex}))
	assert.Contains(t, err.Error(), "WHERE [INVALID_REGEX]")
}

func TestExecute_Limits(t *testing.T) {
	g := fixture(t)
	q, err := query.Parse(`MATCH (a:address) MATCH (b:address) MATCH (r:security-rule) RETURN COUNT(*)`)
	require.NoError(t, err)

	addrs := len(g.NodesOfType(graph.NodeAddress))
	rules := len(g.NodesOfType(graph.NodeSecurityRule))
	total := addrs * addrs * rules

	res, err := Execute(context.Background(), g, q, Options{MaxCandidates: total})
	require.NoError(t, err)
	assert.Equal(t, graph.Int(int64(total)), res.Rows[0][0])

	_, err = Execute(context.Background(), g, q, Options{MaxCandidates: total - 1})
	assert.ErrorIs(t, err, &Error{Code: CodeCandidateLimit})

	_, err = Execute(context.Background(), g, q, Options{MaxMatches: 2})
	assert.ErrorIs(t, err, &Error{Code: CodeMatchLimit})
}

func TestExecute_Cancelled(t *testing.T) {
	g := fixture(t)
	q, err := query.Parse(`MATCH (a:address) RETURN a.name`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Execute(ctx, g, q, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, &Error{Code: CodeCancelled})
}

func TestExecute_Deterministic(t *testing.T) {
	g := fixture(t)
	text := `MATCH (r:security-rule) MATCH (a:address) WHERE r.edges_out CONTAINS {target: a.id} OR a.placeholder == true RETURN r.name, a.name`

	first := mustRun(t, g, text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, mustRun(t, g, text))
	}
}
