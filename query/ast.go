package query

import (
	"fmt"
	"strings"

	"github.com/zero-day-ai/pql/graph"
)

// Pseudo-properties resolved from the node itself rather than its property map.
const (
	FieldID       = "id"
	FieldNodeType = "node_type"
	FieldEdgesOut = "edges_out"
	FieldEdgesIn  = "edges_in"
)

// Query is a parsed PQL query. It is immutable and may be executed any number
// of times, concurrently, against any graph.
type Query struct {
	// Text is the source the query was parsed from.
	Text string `json:"text"`

	// Matches bind one variable each, in source order.
	Matches []MatchClause `json:"matches"`

	// Filter is the WHERE expression; nil when the query has no WHERE.
	Filter Expr `json:"-"`

	// Returns are the projections in source order.
	Returns []ReturnItem `json:"returns"`
}

// IsCount reports whether the query returns a single COUNT(*).
func (q *Query) IsCount() bool {
	return len(q.Returns) == 1 && q.Returns[0].Kind == ReturnCount
}

// Columns returns the result column names.
func (q *Query) Columns() []string {
	cols := make([]string, len(q.Returns))
	for i, r := range q.Returns {
		cols[i] = r.Column()
	}
	return cols
}

func (q *Query) String() string {
	var sb strings.Builder
	for i, m := range q.Matches {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(m.String())
	}
	if q.Filter != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Filter.String())
	}
	sb.WriteString(" RETURN ")
	for i, r := range q.Returns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	return sb.String()
}

// MatchClause binds Variable to every node of NodeType.
type MatchClause struct {
	Variable string   `json:"variable"`
	NodeType string   `json:"node_type"`
	Pos      Position `json:"position"`
}

func (m MatchClause) String() string {
	return fmt.Sprintf("MATCH (%s:%s)", m.Variable, m.NodeType)
}

// Op is a comparison operator.
type Op int

const (
	// OpEq represents equality (==)
	OpEq Op = iota
	// OpNeq represents inequality (!=)
	OpNeq
	// OpLt represents less than (<)
	OpLt
	// OpLte represents less than or equal (<=)
	OpLte
	// OpGt represents greater than (>)
	OpGt
	// OpGte represents greater than or equal (>=)
	OpGte
	// OpRegex represents a full regular expression match (=~)
	OpRegex
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpRegex:
		return "=~"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

var tokenOps = map[TokenKind]Op{
	TokEq:         OpEq,
	TokNeq:        OpNeq,
	TokLt:         OpLt,
	TokLte:        OpLte,
	TokGt:         OpGt,
	TokGte:        OpGte,
	TokRegexMatch: OpRegex,
}

// Expr is a node of the WHERE expression tree: *Binary, *Not, *Comparison or
// *EdgeTest.
type Expr interface {
	Position() Position
	String() string
	exprNode()
}

// Logic is a boolean connective.
type Logic int

const (
	LogicAnd Logic = iota
	LogicOr
)

func (l Logic) String() string {
	if l == LogicOr {
		return "OR"
	}
	return "AND"
}

// Binary combines two expressions with AND or OR.
type Binary struct {
	Op    Logic
	Left  Expr
	Right Expr
	Pos   Position
}

// Not negates an expression.
type Not struct {
	X   Expr
	Pos Position
}

// Comparison compares a property with a literal or another property.
type Comparison struct {
	Left  PropertyRef
	Op    Op
	Right Operand
	Pos   Position
}

// Direction selects the edge list an EdgeTest scans.
type Direction int

const (
	DirOut Direction = iota
	DirIn
)

// Field returns the pseudo-property name of the direction.
func (d Direction) Field() string {
	if d == DirIn {
		return FieldEdgesIn
	}
	return FieldEdgesOut
}

// EdgeTest checks whether a node's edge list holds an edge to (DirOut) or
// from (DirIn) the node identified by Other, optionally restricted to one
// relation:
//
//	g.edges_out CONTAINS {target: a.id, relation: "contains"}
type EdgeTest struct {
	Variable  string
	Direction Direction
	Other     Operand
	Relation  string
	Pos       Position
}

func (*Binary) exprNode()     {}
func (*Not) exprNode()        {}
func (*Comparison) exprNode() {}
func (*EdgeTest) exprNode()   {}

func (b *Binary) Position() Position     { return b.Pos }
func (n *Not) Position() Position        { return n.Pos }
func (c *Comparison) Position() Position { return c.Pos }
func (e *EdgeTest) Position() Position   { return e.Pos }

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (n *Not) String() string {
	return "NOT " + n.X.String()
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func (e *EdgeTest) String() string {
	key := "target"
	if e.Direction == DirIn {
		key = "source"
	}
	s := fmt.Sprintf("%s.%s CONTAINS {%s: %s", e.Variable, e.Direction.Field(), key, e.Other)
	if e.Relation != "" {
		s += fmt.Sprintf(", relation: %q", e.Relation)
	}
	return s + "}"
}

// Operand is the right-hand side of a comparison: a Literal or a PropertyRef.
type Operand interface {
	String() string
	operandNode()
}

// Literal is a constant. Regex is set for /.../ literals.
type Literal struct {
	Value graph.Value
	Regex bool
	Pos   Position
}

// PropertyRef reads Path from the node bound to Variable.
type PropertyRef struct {
	Variable string
	Path     []string
	Pos      Position
}

func (Literal) operandNode()     {}
func (PropertyRef) operandNode() {}

func (l Literal) String() string {
	if l.Regex {
		s, _ := l.Value.AsString()
		return "/" + strings.ReplaceAll(s, "/", `\/`) + "/"
	}
	return l.Value.String()
}

func (p PropertyRef) String() string {
	return p.Variable + "." + strings.Join(p.Path, ".")
}

// Field returns the first path segment.
func (p PropertyRef) Field() string {
	if len(p.Path) == 0 {
		return ""
	}
	return p.Path[0]
}

// ReturnKind distinguishes the three projection forms.
type ReturnKind int

const (
	ReturnProperty ReturnKind = iota
	ReturnVariable
	ReturnCount
)

// ReturnItem is one projection of the RETURN clause.
type ReturnItem struct {
	Kind     ReturnKind   `json:"kind"`
	Property *PropertyRef `json:"property,omitempty"`
	Variable string       `json:"variable,omitempty"`
	Alias    string       `json:"alias,omitempty"`
	Pos      Position     `json:"position"`
}

// Column returns the alias, or the canonical text of the item.
func (r ReturnItem) Column() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.expr()
}

func (r ReturnItem) expr() string {
	switch r.Kind {
	case ReturnCount:
		return "COUNT(*)"
	case ReturnVariable:
		return r.Variable
	default:
		return r.Property.String()
	}
}

func (r ReturnItem) String() string {
	if r.Alias != "" {
		return r.expr() + " AS " + r.Alias
	}
	return r.expr()
}
