// Package query parses PQL, the configuration graph query language.
//
//	MATCH (r:security-rule)
//	MATCH (a:address)
//	WHERE r.edges_out CONTAINS {target: a.id, relation: "uses-source"}
//	  AND a.value =~ "10\\.1\\..*"
//	RETURN r.name, a.name
//
// A query is one or more MATCH clauses, an optional WHERE filter and a RETURN
// list. Each MATCH binds a free variable; relationships are tested in WHERE
// through the edges_out and edges_in pseudo-properties. Relationship patterns
// inside MATCH, a single '=' and string CONTAINS / STARTS WITH are rejected.
package query

import (
	"strconv"
	"strings"

	"github.com/zero-day-ai/pql/graph"
)

// Parse parses query text. The first grammar violation is returned as a
// *ParseError; there is no partial result.
func Parse(text string) (*Query, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	q.Text = text
	return q, nil
}

// Verify reports whether text parses, without executing it.
func Verify(text string) error {
	_, err := Parse(text)
	return err
}

type parser struct {
	toks []Token
	pos  int
	vars map[string]MatchClause
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Kind != TokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kind TokenKind) bool {
	if p.peek().Kind == kind {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind, context string) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return tok, newParseError(tok, "expected %s %s, found %s", kind, context, tok.Kind)
	}
	return p.next(), nil
}

// name accepts an identifier or a keyword used as a name, such as a property
// called "count".
func (p *parser) name(context string) (Token, error) {
	tok := p.peek()
	if tok.Kind == TokIdent || tok.Kind.IsKeyword() {
		return p.next(), nil
	}
	return tok, newParseError(tok, "expected identifier %s, found %s", context, tok.Kind)
}

func (p *parser) parseQuery() (*Query, error) {
	q := &Query{}
	p.vars = make(map[string]MatchClause)

	if p.peek().Kind != TokMatch {
		return nil, newParseError(p.peek(), "query must start with MATCH")
	}
	for p.peek().Kind == TokMatch {
		m, err := p.parseMatch()
		if err != nil {
			return nil, err
		}
		q.Matches = append(q.Matches, m)
	}

	if p.accept(TokWhere) {
		filter, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	}

	if _, err := p.expect(TokReturn, "after MATCH/WHERE"); err != nil {
		return nil, err
	}
	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return nil, err
		}
		q.Returns = append(q.Returns, item)
		if !p.accept(TokComma) {
			break
		}
	}

	if tok := p.peek(); tok.Kind != TokEOF {
		return nil, newParseError(tok, "unexpected %s after RETURN list", tok.Kind)
	}

	if len(q.Returns) > 1 {
		for _, r := range q.Returns {
			if r.Kind == ReturnCount {
				return nil, &ParseError{Pos: r.Pos, Token: "COUNT", Message: "COUNT(*) cannot be combined with other return items"}
			}
		}
	}
	seen := make(map[string]struct{}, len(q.Returns))
	for _, r := range q.Returns {
		col := r.Column()
		if _, dup := seen[col]; dup {
			return nil, &ParseError{Pos: r.Pos, Token: col, Message: "duplicate column " + strconv.Quote(col) + " in RETURN; use AS to rename"}
		}
		seen[col] = struct{}{}
	}
	return q, nil
}

func (p *parser) parseMatch() (MatchClause, error) {
	kw := p.next()
	if _, err := p.expect(TokLParen, "after MATCH"); err != nil {
		return MatchClause{}, err
	}
	v, err := p.expect(TokIdent, "for the MATCH variable")
	if err != nil {
		return MatchClause{}, err
	}
	if tok := p.peek(); tok.Kind == TokRParen {
		return MatchClause{}, newParseError(tok, "MATCH requires a node type: (%s:<type>)", v.Text)
	}
	if _, err := p.expect(TokColon, "between variable and node type"); err != nil {
		return MatchClause{}, err
	}
	nodeType, err := p.name("for the node type")
	if err != nil {
		return MatchClause{}, err
	}
	if tok := p.peek(); tok.Kind == TokLBrace {
		return MatchClause{}, newParseError(tok, "inline property maps are not supported in MATCH; filter in WHERE")
	}
	if _, err := p.expect(TokRParen, "to close the MATCH pattern"); err != nil {
		return MatchClause{}, err
	}

	switch tok := p.peek(); tok.Kind {
	case TokMinus, TokLt:
		return MatchClause{}, newParseError(tok,
			"relationship patterns are not supported in MATCH; bind each node with its own MATCH and test edges_out/edges_in in WHERE")
	case TokComma:
		return MatchClause{}, newParseError(tok, "comma-separated patterns are not supported; use one MATCH per variable")
	}

	if prev, dup := p.vars[v.Text]; dup {
		return MatchClause{}, newParseError(v, "variable %q is already bound at %s", v.Text, prev.Pos)
	}
	m := MatchClause{Variable: v.Text, NodeType: nodeType.Text, Pos: kw.Pos}
	p.vars[v.Text] = m
	return m, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: LogicOr, Left: left, Right: right, Pos: op.Pos}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokAnd {
		op := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: LogicAnd, Left: left, Right: right, Pos: op.Pos}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().Kind == TokNot {
		tok := p.next()
		x, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x, Pos: tok.Pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.accept(TokLParen) {
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "to close the parenthesized expression"); err != nil {
			return nil, err
		}
		return x, nil
	}

	left, err := p.parsePropertyRef(true)
	if err != nil {
		return nil, err
	}

	switch left.Field() {
	case FieldEdgesOut, FieldEdgesIn:
		return p.parseEdgeTest(left)
	}

	tok := p.peek()
	if tok.Kind == TokContains {
		return nil, newParseError(tok, "CONTAINS only applies to edges_out/edges_in; match strings with =~ and a regular expression")
	}
	if tok.Kind == TokIdent {
		switch strings.ToUpper(tok.Text) {
		case "STARTS", "ENDS":
			return nil, newParseError(tok, "%s WITH is not supported; use =~ with an anchored regular expression", strings.ToUpper(tok.Text))
		case "IN", "IS":
			return nil, newParseError(tok, "%s is not supported; use == / != (null is a literal)", strings.ToUpper(tok.Text))
		}
	}
	op, ok := tokenOps[tok.Kind]
	if !ok {
		return nil, newParseError(tok, "expected comparison operator after %s, found %s", left, tok.Kind)
	}
	p.next()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if lit, ok := right.(Literal); ok {
		if op == OpRegex && lit.Value.Kind() != graph.KindString {
			return nil, &ParseError{Pos: lit.Pos, Token: lit.String(), Message: "=~ requires a string or regex literal"}
		}
		if op != OpRegex && lit.Regex {
			return nil, &ParseError{Pos: lit.Pos, Token: lit.String(), Message: "regex literals are only valid with =~"}
		}
	}
	return &Comparison{Left: left, Op: op, Right: right, Pos: left.Pos}, nil
}

func (p *parser) parseEdgeTest(ref PropertyRef) (Expr, error) {
	if len(ref.Path) != 1 {
		return nil, &ParseError{Pos: ref.Pos, Token: ref.String(), Message: ref.Field() + " has no sub-fields"}
	}
	dir, otherKey := DirOut, "target"
	if ref.Field() == FieldEdgesIn {
		dir, otherKey = DirIn, "source"
	}

	if tok := p.peek(); tok.Kind != TokContains {
		return nil, newParseError(tok, "%s can only be tested with CONTAINS {%s: <var>.id, relation: \"<name>\"}", ref.Field(), otherKey)
	}
	p.next()
	if _, err := p.expect(TokLBrace, "after CONTAINS"); err != nil {
		return nil, err
	}

	test := &EdgeTest{Variable: ref.Variable, Direction: dir, Pos: ref.Pos}
	seen := map[string]bool{}
	for {
		key, err := p.name("for the edge field")
		if err != nil {
			return nil, err
		}
		k := strings.ToLower(key.Text)
		if seen[k] {
			return nil, newParseError(key, "duplicate key %q", key.Text)
		}
		seen[k] = true
		if _, err := p.expect(TokColon, "after "+key.Text); err != nil {
			return nil, err
		}

		switch k {
		case otherKey:
			other, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if lit, ok := other.(Literal); ok && lit.Value.Kind() != graph.KindString {
				return nil, &ParseError{Pos: lit.Pos, Token: lit.String(), Message: otherKey + " must be a node id string or a property such as a.id"}
			}
			test.Other = other
		case "relation":
			tok, err := p.expect(TokString, "for the relation name")
			if err != nil {
				return nil, err
			}
			test.Relation = tok.Text
		default:
			return nil, newParseError(key, "unknown key %q for %s (expected %s or relation)", key.Text, ref.Field(), otherKey)
		}

		if p.accept(TokComma) {
			continue
		}
		if _, err := p.expect(TokRBrace, "to close the edge map"); err != nil {
			return nil, err
		}
		break
	}

	if test.Other == nil {
		return nil, &ParseError{Pos: ref.Pos, Token: ref.String(), Message: ref.Field() + " CONTAINS requires a " + otherKey + " key"}
	}
	return test, nil
}

// parsePropertyRef parses var.field(.field)*. With requireField false a bare
// variable is accepted and returned with an empty path.
func (p *parser) parsePropertyRef(requireField bool) (PropertyRef, error) {
	v, err := p.expect(TokIdent, "for a variable")
	if err != nil {
		return PropertyRef{}, err
	}
	if _, bound := p.vars[v.Text]; !bound {
		return PropertyRef{}, newParseError(v, "variable %q is not bound by any MATCH clause", v.Text)
	}
	ref := PropertyRef{Variable: v.Text, Pos: v.Pos}

	if p.peek().Kind != TokDot {
		if requireField {
			return ref, newParseError(p.peek(), "expected '.' and a property name after %q", v.Text)
		}
		return ref, nil
	}
	for p.accept(TokDot) {
		seg, err := p.name("after '.'")
		if err != nil {
			return ref, err
		}
		ref.Path = append(ref.Path, seg.Text)
	}

	for i, seg := range ref.Path {
		if (seg == FieldEdgesOut || seg == FieldEdgesIn) && i > 0 {
			return ref, &ParseError{Pos: ref.Pos, Token: ref.String(), Message: seg + " is only valid directly on a variable"}
		}
	}
	return ref, nil
}

func (p *parser) parseOperand() (Operand, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokString:
		p.next()
		return Literal{Value: graph.String(tok.Text), Pos: tok.Pos}, nil
	case TokRegex:
		p.next()
		return Literal{Value: graph.String(tok.Text), Regex: true, Pos: tok.Pos}, nil
	case TokNumber:
		p.next()
		if strings.Contains(tok.Text, ".") {
			f, err := strconv.ParseFloat(tok.Text, 64)
			if err != nil {
				return nil, newParseError(tok, "invalid number")
			}
			return Literal{Value: graph.Float(f), Pos: tok.Pos}, nil
		}
		i, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, newParseError(tok, "invalid integer")
		}
		return Literal{Value: graph.Int(i), Pos: tok.Pos}, nil
	case TokTrue, TokFalse:
		p.next()
		return Literal{Value: graph.Bool(tok.Kind == TokTrue), Pos: tok.Pos}, nil
	case TokNull:
		p.next()
		return Literal{Value: graph.Null(), Pos: tok.Pos}, nil
	case TokIdent:
		ref, err := p.parsePropertyRef(true)
		if err != nil {
			return nil, err
		}
		if f := ref.Field(); f == FieldEdgesOut || f == FieldEdgesIn {
			return nil, &ParseError{Pos: ref.Pos, Token: ref.String(), Message: f + " can only be tested with CONTAINS"}
		}
		return ref, nil
	default:
		return nil, newParseError(tok, "expected a literal or property, found %s", tok.Kind)
	}
}

func (p *parser) parseReturnItem() (ReturnItem, error) {
	tok := p.peek()
	var item ReturnItem

	switch tok.Kind {
	case TokCount:
		p.next()
		if _, err := p.expect(TokLParen, "after COUNT"); err != nil {
			return item, err
		}
		if _, err := p.expect(TokStar, "in COUNT(*)"); err != nil {
			return item, err
		}
		if _, err := p.expect(TokRParen, "to close COUNT(*)"); err != nil {
			return item, err
		}
		item = ReturnItem{Kind: ReturnCount, Pos: tok.Pos}
	case TokIdent:
		ref, err := p.parsePropertyRef(false)
		if err != nil {
			return item, err
		}
		if len(ref.Path) == 0 {
			item = ReturnItem{Kind: ReturnVariable, Variable: ref.Variable, Pos: tok.Pos}
			break
		}
		if f := ref.Field(); f == FieldEdgesOut || f == FieldEdgesIn {
			return item, &ParseError{Pos: ref.Pos, Token: ref.String(), Message: f + " cannot be returned; it is only usable with CONTAINS"}
		}
		item = ReturnItem{Kind: ReturnProperty, Property: &ref, Pos: tok.Pos}
	default:
		return item, newParseError(tok, "expected a property, variable or COUNT(*) in RETURN, found %s", tok.Kind)
	}

	if p.accept(TokAs) {
		alias, err := p.name("after AS")
		if err != nil {
			return item, err
		}
		item.Alias = alias.Text
	}
	return item, nil
}
