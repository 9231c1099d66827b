package query

import (
	"strings"
	"unicode/utf8"
)

// lexer splits query text into tokens. Literal handling lives here:
//
//   - strings are delimited by '"' or '\'' and understand the escapes \\, \",
//     \', \n and \t; any other backslash sequence is kept verbatim, so
//     "10\.1" and "10\\.1" both yield the regex 10\.1
//   - regex literals are delimited by '/'; only \/ is rewritten (to /), every
//     other character is passed to the regex engine untouched
//   - an unterminated string or regex is a syntax error
type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

// tokenize returns every token of src followed by a TokEOF token.
func tokenize(src string) ([]Token, error) {
	lx := newLexer(src)
	var toks []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) pos() Position {
	return Position{Offset: lx.off, Line: lx.line, Column: lx.col}
}

func (lx *lexer) peek(n int) byte {
	if lx.off+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+n]
}

// advance consumes one rune and returns it.
func (lx *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(lx.src[lx.off:])
	lx.off += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) skipSpace() {
	for lx.off < len(lx.src) {
		switch lx.src[lx.off] {
		case ' ', '\t', '\r', '\n':
			lx.advance()
		default:
			return
		}
	}
}

func (lx *lexer) next() (Token, error) {
	lx.skipSpace()
	start := lx.pos()
	if lx.off >= len(lx.src) {
		return Token{Kind: TokEOF, Pos: start}, nil
	}

	c := lx.src[lx.off]
	switch {
	case isIdentStart(c):
		return lx.ident(start), nil
	case isDigit(c), c == '-' && isDigit(lx.peek(1)):
		return lx.number(start), nil
	case c == '"' || c == '\'':
		return lx.str(start, c)
	case c == '/':
		return lx.regex(start)
	}

	single := map[byte]TokenKind{
		'(': TokLParen, ')': TokRParen,
		'{': TokLBrace, '}': TokRBrace,
		'[': TokLBracket, ']': TokRBracket,
		':': TokColon, ',': TokComma, '.': TokDot,
		'*': TokStar, '-': TokMinus,
	}
	if kind, ok := single[c]; ok {
		lx.advance()
		return Token{Kind: kind, Text: string(c), Pos: start}, nil
	}

	two := lx.src[lx.off:min(lx.off+2, len(lx.src))]
	switch two {
	case "==":
		return lx.op(start, TokEq, 2), nil
	case "!=":
		return lx.op(start, TokNeq, 2), nil
	case "<=":
		return lx.op(start, TokLte, 2), nil
	case ">=":
		return lx.op(start, TokGte, 2), nil
	case "=~":
		return lx.op(start, TokRegexMatch, 2), nil
	case "<>":
		return Token{}, &ParseError{Pos: start, Token: two, Message: "'<>' is not an operator; use '!=' for inequality"}
	}

	switch c {
	case '<':
		return lx.op(start, TokLt, 1), nil
	case '>':
		return lx.op(start, TokGt, 1), nil
	case '=':
		return Token{}, &ParseError{Pos: start, Token: "=", Message: "single '=' is not an operator; use '==' for equality"}
	case '!':
		return Token{}, &ParseError{Pos: start, Token: "!", Message: "unexpected '!'; use NOT for negation or '!=' for inequality"}
	}

	r, _ := utf8.DecodeRuneInString(lx.src[lx.off:])
	return Token{}, &ParseError{Pos: start, Token: string(r), Message: "unexpected character"}
}

func (lx *lexer) op(start Position, kind TokenKind, width int) Token {
	text := lx.src[lx.off : lx.off+width]
	for i := 0; i < width; i++ {
		lx.advance()
	}
	return Token{Kind: kind, Text: text, Pos: start}
}

func (lx *lexer) ident(start Position) Token {
	begin := lx.off
	for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
		lx.advance()
	}
	text := lx.src[begin:lx.off]
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		return Token{Kind: kind, Text: text, Pos: start}
	}
	return Token{Kind: TokIdent, Text: text, Pos: start}
}

func (lx *lexer) number(start Position) Token {
	begin := lx.off
	if lx.src[lx.off] == '-' {
		lx.advance()
	}
	for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
		lx.advance()
	}
	if lx.peek(0) == '.' && isDigit(lx.peek(1)) {
		lx.advance()
		for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
			lx.advance()
		}
	}
	return Token{Kind: TokNumber, Text: lx.src[begin:lx.off], Pos: start}
}

func (lx *lexer) str(start Position, quote byte) (Token, error) {
	lx.advance()
	var sb strings.Builder
	for {
		if lx.off >= len(lx.src) {
			return Token{}, &ParseError{Pos: start, Token: lx.src[start.Offset:], Message: "unterminated string literal"}
		}
		c := lx.src[lx.off]
		if c == quote {
			lx.advance()
			return Token{Kind: TokString, Text: sb.String(), Pos: start}, nil
		}
		if c == '\\' && lx.off+1 < len(lx.src) {
			lx.advance()
			switch esc := lx.src[lx.off]; esc {
			case '\\', '"', '\'':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte('\\')
				sb.WriteRune(lx.advance())
				continue
			}
			lx.advance()
			continue
		}
		sb.WriteRune(lx.advance())
	}
}

func (lx *lexer) regex(start Position) (Token, error) {
	lx.advance()
	var sb strings.Builder
	for {
		if lx.off >= len(lx.src) {
			return Token{}, &ParseError{Pos: start, Token: lx.src[start.Offset:], Message: "unterminated regex literal"}
		}
		c := lx.src[lx.off]
		if c == '/' {
			lx.advance()
			return Token{Kind: TokRegex, Text: sb.String(), Pos: start}, nil
		}
		if c == '\\' && lx.peek(1) == '/' {
			lx.advance()
			lx.advance()
			sb.WriteByte('/')
			continue
		}
		sb.WriteRune(lx.advance())
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
