// Package apperr defines the error taxonomy of the visualization core.
// None of these errors is fatal: callers keep their last good state.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	// KindFetch is a network or decode failure while loading a snapshot.
	KindFetch Kind = "FETCH_FAILURE"
	// KindMalformedGraph is a link whose endpoint is not a node of its snapshot.
	KindMalformedGraph Kind = "MALFORMED_GRAPH"
	// KindQuery is a network or decode failure on a query.
	KindQuery Kind = "QUERY_FAILURE"
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrFetch          = &Error{Kind: KindFetch}
	ErrMalformedGraph = &Error{Kind: KindMalformedGraph}
	ErrQuery          = &Error{Kind: KindQuery}
)

// Error carries a Kind, the operation that failed and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Fetch wraps err as a FetchFailure.
func Fetch(op string, err error) *Error {
	return &Error{Kind: KindFetch, Op: op, Err: err}
}

// Query wraps err as a QueryFailure.
func Query(op string, err error) *Error {
	return &Error{Kind: KindQuery, Op: op, Err: err}
}

// MalformedLink reports a link with an endpoint that does not resolve.
func MalformedLink(source, target, missing string) *Error {
	return &Error{
		Kind: KindMalformedGraph,
		Op:   fmt.Sprintf("link %s -> %s", source, target),
		Err:  fmt.Errorf("node %q does not exist", missing),
	}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
