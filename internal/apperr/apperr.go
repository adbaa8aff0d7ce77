// Package apperr defines the error kinds returned by the procurement workflow.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and the HTTP layer.
type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidState       Kind = "invalid_state"
	WindowClosed       Kind = "window_closed"
	Forbidden          Kind = "forbidden"
	Duplicate          Kind = "duplicate"
	OutOfRange         Kind = "out_of_range"
	PreconditionFailed Kind = "precondition_failed"
	SealIntegrity      Kind = "seal_integrity"
	InvalidInput       Kind = "invalid_input"
	Unavailable        Kind = "unavailable"
	Internal           Kind = "internal"
)

// Error is a business error with a reason that is safe to show to the caller.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.New(apperr.Duplicate, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or Internal for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ReasonOf returns the caller-safe reason. Internal errors never expose their text.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the operation with backoff.
// Only store connectivity failures and timeouts qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == Unavailable
}
