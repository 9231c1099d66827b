package query

import (
	"errors"
	"fmt"
)

// ErrSyntax is matched by every ParseError.
//
// Example:
//
//	if _, err := query.Parse(text); errors.Is(err, query.ErrSyntax) {
//	    // report the position to the user
//	}
var ErrSyntax = errors.New("query syntax error")

// ParseError reports a grammar violation. Parsing stops at the first error.
type ParseError struct {
	// Pos is where the offending token starts.
	Pos Position `json:"position"`

	// Token is the offending source text; empty at end of input.
	Token string `json:"token"`

	// Message describes what was expected.
	Message string `json:"message"`
}

func newParseError(tok Token, format string, args ...any) *ParseError {
	text := tok.Text
	if tok.Kind == TokString {
		text = fmt.Sprintf("%q", tok.Text)
	}
	return &ParseError{Pos: tok.Pos, Token: text, Message: fmt.Sprintf(format, args...)}
}

// Error formats the error as "syntax error at line L, column C near "tok": message".
func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Message)
	}
	return fmt.Sprintf("syntax error at %s near %q: %s", e.Pos, e.Token, e.Message)
}

// Unwrap returns ErrSyntax so that errors.Is works on any ParseError.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}
