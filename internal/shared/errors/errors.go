package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
	ErrValidation = errors.New("validation error")
	ErrUpstream   = errors.New("upstream service error")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents an application error with context
type AppError struct {
	Err        error        `json:"-"`
	Message    string       `json:"message"`
	HTTPStatus int          `json:"-"`
	Errors     []FieldError `json:"errors,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(message string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    message,
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with per-field details
func Validation(fields ...FieldError) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    "Validation error",
		HTTPStatus: http.StatusBadRequest,
		Errors:     fields,
	}
}

// Upstream creates an error for a failed call to an external collaborator.
// The wrapped cause is logged server-side; the message is what callers see.
func Upstream(err error, message string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrUpstream, err),
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Internal creates an internal error with an opaque caller-facing message
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Err:        appErr,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Errors:     appErr.Errors,
		}
	}
	return &AppError{
		Err:        err,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}
