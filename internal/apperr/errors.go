// Package apperr defines the error-kind taxonomy shared across the workflow core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error without requiring a distinct Go type per site.
type Kind string

const (
	NotFound         Kind = "not_found"
	Validation       Kind = "validation"
	Database         Kind = "database"
	Sidecar          Kind = "sidecar"
	Workflow         Kind = "workflow"
	BudgetExhausted  Kind = "budget_exhausted"
	Internal         Kind = "internal"
)

// Error is the concrete error type carried through the core. It wraps an
// optional cause and is comparable by Kind via errors.Is.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes errors.Is(err, apperr.New(apperr.NotFound, "")) work: a target
// *Error matches by comparing Kind only, whatever its message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal when err is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
