// Package qerrors defines the closed set of error kinds the planner and
// executor can return, per spec.md §7.
package qerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of query error kinds.
type Kind int

const (
	// NoSuchColumn means an expression referenced a column absent from the partition.
	NoSuchColumn Kind = iota
	// TypeError means no kernel is available for the compiled operand types.
	TypeError
	// NotImplemented means a recognized but unsupported case was hit.
	NotImplemented
	// FatalError means an executor or validation invariant was violated.
	FatalError
)

func (k Kind) String() string {
	switch k {
	case NoSuchColumn:
		return "NoSuchColumn"
	case TypeError:
		return "TypeError"
	case NotImplemented:
		return "NotImplemented"
	case FatalError:
		return "FatalError"
	default:
		return "UnknownError"
	}
}

// QueryError is the error type returned across the planner/executor boundary.
type QueryError struct {
	Kind  Kind
	cause error
}

func (e *QueryError) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *QueryError) Unwrap() error { return e.cause }

// New builds a QueryError of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: kind, cause: fmt.Errorf(format, args...)}
}

// Wrap attaches diagnostic context (via github.com/pkg/errors, which keeps a
// stack trace) to an existing error and tags it with kind.
func Wrap(kind Kind, err error, context string) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{Kind: kind, cause: errors.Wrap(err, context)}
}

// Is reports whether err is a *QueryError of the given kind.
func Is(err error, kind Kind) bool {
	qe, ok := err.(*QueryError)
	if !ok {
		return false
	}
	return qe.Kind == kind
}
