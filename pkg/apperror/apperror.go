package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that need to react to it (handlers, tests)
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindDuplicateKey     Kind = "DUPLICATE_KEY"
	KindConflict         Kind = "CONFLICT"
	KindForbidden        Kind = "FORBIDDEN"
	KindValidationFailed Kind = "VALIDATION_FAILED"
	KindInternal         Kind = "INTERNAL_FAILURE"
)

// Error is the error type returned by services
type Error struct {
	Kind    Kind
	Message string
	Details interface{} // per-item reasons, optional
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails returns a copy of e carrying details
func (e *Error) WithDetails(details interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func DuplicateKey(format string, args ...interface{}) *Error {
	return New(KindDuplicateKey, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidationFailed, format, args...)
}

func Internal(err error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf reports the kind of err; untyped errors are internal failures
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code the HTTP surface answers with
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateKey, KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
