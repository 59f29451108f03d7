// Package errs defines the error taxonomy shared by the store, the
// ingestion pipeline and the HTTP layer.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeValidation       = "VALIDATION"
	CodeNotFound         = "NOT_FOUND"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeInternal         = "INTERNAL"
)

// AppError carries a machine-readable code and the HTTP status the API
// layer should answer with.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation signals invalid caller input (empty body, missing required
// field). Not retryable.
func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// NotFound signals that a referenced conversation or message does not exist.
func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource), Status: http.StatusNotFound}
}

// MalformedPayload signals a webhook payload shape violation. The ingestion
// boundary logs and skips these, they are never surfaced to the caller.
func MalformedPayload(message string) *AppError {
	return &AppError{Code: CodeMalformedPayload, Message: message, Status: http.StatusBadRequest}
}

// Internal wraps a storage or infrastructure failure.
func Internal(message string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
