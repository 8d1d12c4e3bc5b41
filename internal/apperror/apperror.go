// Package apperror defines the application's error taxonomy.
//
// Each sentinel names a CATEGORY of failure. Concrete errors are *AppError
// values that wrap one sentinel plus a human-readable message, so callers
// can do both:
//
//	errors.Is(err, apperror.ErrNotFound)   // which category?
//	errors.As(err, &appErr)                // what to tell the client?
//
// The HTTP layer (internal/api) is the only place that turns categories
// into status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrMissingCredential = errors.New("missing credential")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUpstream          = errors.New("upstream store error")
)

type AppError struct {
	Err     error  // category sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, never shown to clients
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the category and the cause, so errors.Is matches
// either of them.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidBody reports a request body that could not be parsed or is not
// the expected shape. HTTP handlers map this to 400 Bad Request.
func InvalidBody(cause error) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: "Invalid body",
		Field:   "body",
		Cause:   cause,
	}
}

// MissingCredential reports a protected request without a bearer value.
// HTTP handlers map this to 400 Bad Request, not 401.
func MissingCredential() *AppError {
	return &AppError{
		Err:     ErrMissingCredential,
		Message: "Bad request",
	}
}

// Unauthorized reports a bearer value that failed verification.
func Unauthorized(cause error) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "Unauthorized",
		Cause:   cause,
	}
}

// Upstream wraps a failure of the external key-value store.
// HTTP handlers map this to 502 Bad Gateway.
func Upstream(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: fmt.Sprintf("storage unavailable during %s", op),
		Cause:   cause,
	}
}
