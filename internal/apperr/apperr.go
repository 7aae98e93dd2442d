// Package apperr defines the error taxonomy shared by guards, handlers and
// the rating service.  Every error that reaches the HTTP layer is rendered
// as a machine-readable kind plus a human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation       Kind = "validation_failed"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInvalidOperation Kind = "invalid_operation"
	KindInternal         Kind = "internal"
)

// Status maps a kind onto an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one failed field-level validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the concrete error type.  Err holds the underlying cause, which
// is logged but never sent to clients.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap builds an Error of the given kind carrying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func Validation(msg string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func Unauthorized(msg string) *Error     { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error        { return New(KindForbidden, msg) }
func NotFound(msg string) *Error         { return New(KindNotFound, msg) }
func Conflict(msg string) *Error         { return New(KindConflict, msg) }
func InvalidOperation(msg string) *Error { return New(KindInvalidOperation, msg) }

func Internal(msg string, cause error) *Error { return Wrap(KindInternal, msg, cause) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
