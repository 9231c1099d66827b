package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecution is matched by every *Error returned from Execute.
var ErrExecution = errors.New("query execution failed")

// Error codes reported by Execute.
const (
	// CodeUnknownNodeType indicates a MATCH names a node type the graph does not define
	CodeUnknownNodeType = "UNKNOWN_NODE_TYPE"

	// CodeUnknownField indicates a property path starts with a field the node type does not declare
	CodeUnknownField = "UNKNOWN_FIELD"

	// CodeInvalidRegex indicates a =~ pattern does not compile
	CodeInvalidRegex = "INVALID_REGEX"

	// CodeTypeMismatch indicates a comparison between incompatible value kinds
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeCandidateLimit indicates the candidate product exceeds Options.MaxCandidates
	CodeCandidateLimit = "CANDIDATE_LIMIT"

	// CodeMatchLimit indicates the query has more MATCH clauses than Options.MaxMatches
	CodeMatchLimit = "MATCH_LIMIT"

	// CodeCancelled indicates the context was cancelled during evaluation
	CodeCancelled = "CANCELLED"
)

// Clause names used in Error.Clause.
const (
	ClauseMatch  = "MATCH"
	ClauseWhere  = "WHERE"
	ClauseReturn = "RETURN"
)

// Error describes why a query could not be executed against a graph.
type Error struct {
	// Clause is the query clause that failed: MATCH, WHERE or RETURN.
	Clause string `json:"clause"`

	// Code is one of the Code constants.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

func newError(clause, code, format string, args ...any) *Error {
	return &Error{Clause: clause, Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withCause(err error) *Error {
	e.Cause = err
	return e
}

// Error formats the error as "CLAUSE [CODE]: message: cause".
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("%s [%s]", e.Clause, e.Code)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrExecution or an *Error with the same code.
func (e *Error) Is(target error) bool {
	if target == ErrExecution {
		return true
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
