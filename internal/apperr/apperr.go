// Package apperr models the error taxonomy used across the auction core.
// Services return one of these kinds wrapped around a cause; handlers map
// the kind to an HTTP status without inspecting the message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories a caller needs to branch on.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindConflict     Kind = "CONFLICT"
	KindNotFound     Kind = "NOT_FOUND"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindTransient    Kind = "TRANSIENT"
)

// Error is a typed application error. Two Errors are errors.Is-equal when
// their Kind matches, regardless of message, so callers can do
// errors.Is(err, apperr.Conflict("")) style checks via Is.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is implements errors.Is matching by Kind only, so sentinels like
// apperr.ErrConflict can be compared against any concrete *Error of that
// kind produced anywhere in the call stack.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation wraps a request-shape or business-rule validation failure.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Conflict wraps a state-guard mismatch: the entity moved under the caller.
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// NotFound wraps a missing entity lookup.
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Unauthorized wraps a missing or invalid caller identity.
func Unauthorized(format string, args ...any) *Error { return newf(KindUnauthorized, format, args...) }

// Forbidden wraps a caller identity that is valid but not permitted.
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

// Transient wraps a retryable infrastructure failure (lock contention,
// serialization failure, connection blip).
func Transient(cause error, format string, args ...any) *Error {
	e := newf(KindTransient, format, args...)
	e.Cause = cause
	return e
}

// Sentinels usable with errors.Is(err, apperr.ErrConflict) etc.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrTransient    = &Error{Kind: KindTransient}
)

// As extracts the Kind of err, if it (or something it wraps) is an *Error.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
