package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenKind
	}{
		{
			name:  "match pattern",
			input: "MATCH (r:security-rule)",
			want:  []TokenKind{TokMatch, TokLParen, TokIdent, TokColon, TokIdent, TokRParen, TokEOF},
		},
		{
			name:  "keywords are case-insensitive",
			input: "match Where return and OR not count contains as True FALSE null",
			want: []TokenKind{TokMatch, TokWhere, TokReturn, TokAnd, TokOr, TokNot, TokCount,
				TokContains, TokAs, TokTrue, TokFalse, TokNull, TokEOF},
		},
		{
			name:  "operators",
			input: "== != < <= > >= =~",
			want:  []TokenKind{TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte, TokRegexMatch, TokEOF},
		},
		{
			name:  "numbers",
			input: "42 -7 3.5",
			want:  []TokenKind{TokNumber, TokNumber, TokNumber, TokEOF},
		},
		{
			name:  "minus before bracket",
			input: ")-[",
			want:  []TokenKind{TokRParen, TokMinus, TokLBracket, TokEOF},
		},
		{
			name:  "empty",
			input: "   \n\t",
			want:  []TokenKind{TokEOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := tokenize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds(toks))
		})
	}
}

func TestTokenize_Literals(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  TokenKind
		text  string
	}{
		{name: "double quoted", input: `"any"`, kind: TokString, text: "any"},
		{name: "single quoted", input: `'web server'`, kind: TokString, text: "web server"},
		{name: "escaped quote", input: `"say \"hi\""`, kind: TokString, text: `say "hi"`},
		{name: "escaped backslash", input: `"10\\.1\\..*"`, kind: TokString, text: `10\.1\..*`},
		{name: "unknown escape kept", input: `"10\.1"`, kind: TokString, text: `10\.1`},
		{name: "newline and tab", input: `"a\nb\tc"`, kind: TokString, text: "a\nb\tc"},
		{name: "regex", input: `/10\.1\..*/`, kind: TokRegex, text: `10\.1\..*`},
		{name: "regex escaped slash", input: `/10\.0\.0\.0\/8/`, kind: TokRegex, text: `10\.0\.0\.0/8`},
		{name: "identifier with digits", input: "rule_2-b", kind: TokIdent, text: "rule_2-b"},
		{name: "negative float", input: "-1.25", kind: TokNumber, text: "-1.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := tokenize(tt.input)
			require.NoError(t, err)
			require.Len(t, toks, 2)
			assert.Equal(t, tt.kind, toks[0].Kind)
			assert.Equal(t, tt.text, toks[0].Text)
		})
	}
}

func TestTokenize_Positions(t *testing.T) {
	toks, err := tokenize("MATCH (a:tag)\nRETURN a.name")
	require.NoError(t, err)

	ret := toks[6]
	require.Equal(t, TokReturn, ret.Kind)
	assert.Equal(t, Position{Offset: 14, Line: 2, Column: 1}, ret.Pos)

	name := toks[9]
	assert.Equal(t, "name", name.Text)
	assert.Equal(t, 2, name.Pos.Line)
	assert.Equal(t, 10, name.Pos.Column)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
		wantCol int
	}{
		{name: "single equals", input: "a.name = 1", wantMsg: "'=='", wantCol: 8},
		{name: "angle inequality", input: "a <> b", wantMsg: "'!='", wantCol: 3},
		{name: "bare bang", input: "!a", wantMsg: "NOT", wantCol: 1},
		{name: "unterminated string", input: `a == "open`, wantMsg: "unterminated string", wantCol: 6},
		{name: "unterminated regex", input: "a =~ /open", wantMsg: "unterminated regex", wantCol: 6},
		{name: "unexpected character", input: "a @ b", wantMsg: "unexpected character", wantCol: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokenize(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Message, tt.wantMsg)
			assert.Equal(t, tt.wantCol, perr.Pos.Column)
		})
	}
}
