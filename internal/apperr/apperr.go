// Package apperr defines the error taxonomy shared by every layer of the
// approvals service. Errors carry a machine-readable code so the HTTP layer
// can map them to status codes and callers can branch on the failure class
// without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for transport mapping.
type Code string

const (
	// ErrCodeValidation marks malformed workflow or step definitions and
	// malformed requests. Not retryable; the caller must fix the input.
	ErrCodeValidation Code = "VALIDATION"

	// ErrCodeConfiguration marks a missing or inactive workflow referenced
	// by a submission.
	ErrCodeConfiguration Code = "CONFIGURATION"

	// ErrCodeUnauthorized marks an actor that is not an approver for the
	// current step, or a cancel attempt by someone other than the submitter.
	ErrCodeUnauthorized Code = "UNAUTHORIZED"

	// ErrCodeAlreadyDecided marks an action against a terminal instance.
	ErrCodeAlreadyDecided Code = "ALREADY_DECIDED"

	// ErrCodeConflict marks a stale-version write or a duplicate open
	// submission. Retryable after the caller re-fetches current state.
	ErrCodeConflict Code = "CONFLICT"

	// ErrCodeNotFound marks an unknown instance or workflow.
	ErrCodeNotFound Code = "NOT_FOUND"

	// ErrCodeInternal marks persistence or collaborator failures.
	ErrCodeInternal Code = "INTERNAL"
)

// Error is a code-tagged error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a code and message. Returns nil for a nil cause.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound creates a NOT_FOUND error for a resource lookup.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resource, id)
}

// InvalidInput creates a VALIDATION error for a specific field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeValidation, "%s: %s", field, message)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the taxonomy code from an error chain.
// Untagged errors report ErrCodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error to the status code the handler layer returns.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConfiguration:
		return http.StatusUnprocessableEntity
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeAlreadyDecided, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
