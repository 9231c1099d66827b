package query

import "fmt"

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokString
	TokRegex
	TokNumber

	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokColon
	TokComma
	TokDot
	TokStar
	TokMinus

	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte
	TokRegexMatch

	TokMatch
	TokWhere
	TokReturn
	TokAnd
	TokOr
	TokNot
	TokCount
	TokContains
	TokAs
	TokTrue
	TokFalse
	TokNull
)

var keywords = map[string]TokenKind{
	"MATCH":    TokMatch,
	"WHERE":    TokWhere,
	"RETURN":   TokReturn,
	"AND":      TokAnd,
	"OR":       TokOr,
	"NOT":      TokNot,
	"COUNT":    TokCount,
	"CONTAINS": TokContains,
	"AS":       TokAs,
	"TRUE":     TokTrue,
	"FALSE":    TokFalse,
	"NULL":     TokNull,
}

var tokenNames = map[TokenKind]string{
	TokEOF:        "end of query",
	TokIdent:      "identifier",
	TokString:     "string",
	TokRegex:      "regex",
	TokNumber:     "number",
	TokLParen:     "'('",
	TokRParen:     "')'",
	TokLBrace:     "'{'",
	TokRBrace:     "'}'",
	TokLBracket:   "'['",
	TokRBracket:   "']'",
	TokColon:      "':'",
	TokComma:      "','",
	TokDot:        "'.'",
	TokStar:       "'*'",
	TokMinus:      "'-'",
	TokEq:         "'=='",
	TokNeq:        "'!='",
	TokLt:         "'<'",
	TokLte:        "'<='",
	TokGt:         "'>'",
	TokGte:        "'>='",
	TokRegexMatch: "'=~'",
	TokMatch:      "MATCH",
	TokWhere:      "WHERE",
	TokReturn:     "RETURN",
	TokAnd:        "AND",
	TokOr:         "OR",
	TokNot:        "NOT",
	TokCount:      "COUNT",
	TokContains:   "CONTAINS",
	TokAs:         "AS",
	TokTrue:       "true",
	TokFalse:      "false",
	TokNull:       "null",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// IsKeyword reports whether k is a reserved word.
func (k TokenKind) IsKeyword() bool {
	return k >= TokMatch
}

// Position locates a token in the query text. Line and Column are 1-based;
// Offset is the 0-based byte offset.
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Token is one lexical unit. Text holds the source text for identifiers,
// keywords and operators, and the decoded contents for string and regex
// literals.
type Token struct {
	Kind TokenKind
	Text string
	Pos  Position
}
