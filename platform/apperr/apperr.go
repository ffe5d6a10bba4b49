// Package apperr provides typed domain errors for the application.
// Services return these and the HTTP layer maps them to status codes,
// so no handler ever inspects error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	// KindUnknown is the zero value for untyped errors.
	KindUnknown Kind = iota
	// KindNotFound indicates the requested record does not exist.
	KindNotFound
	// KindInvalidInput indicates a malformed reason, date, response value,
	// or out-of-range index.
	KindInvalidInput
	// KindForbidden indicates the caller's visibility scope excludes the target.
	KindForbidden
	// KindConflict indicates an optimistic-write collision; the whole
	// operation should be re-read and recomputed, never merged.
	KindConflict
	// KindUnauthorized indicates missing or failed authentication.
	KindUnauthorized
	// KindInternal indicates an unexpected infrastructure failure.
	KindInternal
)

// Error is a domain error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap supports errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// New creates a typed error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound creates a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// InvalidInput creates an invalid-input error.
func InvalidInput(message string) *Error { return New(KindInvalidInput, message) }

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Conflict creates an optimistic-write collision error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Internal creates an internal error.
func Internal(message string) *Error { return New(KindInternal, message) }

// KindOf extracts the Kind from an error chain, KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
