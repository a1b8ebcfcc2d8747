// Package errors provides structured error types and response helpers for the API.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/musudik/dropmybeat-api/internal/requests"
)

// Error codes for structured API responses.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// APIError is the body of every error response.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	c := *e
	c.Details = details
	return &c
}

// WithRequestID returns a copy of the error with the request ID set.
func (e *APIError) WithRequestID(requestID string) *APIError {
	c := *e
	c.RequestID = requestID
	return &c
}

// New creates a new APIError with the given code and message.
func New(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *APIError { return New(CodeValidationError, message) }

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *APIError { return New(CodeNotFound, message) }

// NewUnauthorizedError creates an unauthorized error.
func NewUnauthorizedError(message string) *APIError { return New(CodeUnauthorized, message) }

// NewForbiddenError creates a forbidden error.
func NewForbiddenError(message string) *APIError { return New(CodeForbidden, message) }

// NewInternalError creates an internal server error.
func NewInternalError(message string) *APIError { return New(CodeInternalError, message) }

// NewConflictError creates a conflict error.
func NewConflictError(message string) *APIError { return New(CodeConflict, message) }

// HTTPStatusCode returns the HTTP status for the error code.
func (e *APIError) HTTPStatusCode() int {
	switch e.Code {
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeDuplicateRequest:
		return http.StatusConflict
	case CodeLimitExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// kinds maps service error kinds to response codes. Order matters only for errors
// that wrap more than one kind, which the service never produces.
var kinds = []struct {
	kind error
	code string
}{
	{requests.ErrValidation, CodeValidationError},
	{requests.ErrUnauthorized, CodeUnauthorized},
	{requests.ErrForbidden, CodeForbidden},
	{requests.ErrNotFound, CodeNotFound},
	{requests.ErrConflict, CodeConflict},
	{requests.ErrInvalidTransition, CodeInvalidTransition},
	{requests.ErrDuplicateRequest, CodeDuplicateRequest},
	{requests.ErrLimitExceeded, CodeLimitExceeded},
}

// FromError converts a service error into an APIError. Errors that are not one of the
// service's kinds become INTERNAL_ERROR with a generic message, so internals never leak.
func FromError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.kind) {
			return New(k.code, message(err, k.kind))
		}
	}
	return NewInternalError("internal server error")
}

// message strips the kind prefix from "kind: detail" so clients get the detail alone.
func message(err, kind error) string {
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, kind.Error()+": "); ok {
		return detail
	}
	return msg
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an APIError as a JSON response.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}

// WriteErrorWithRequestID writes an APIError with the request ID set.
func WriteErrorWithRequestID(w http.ResponseWriter, err *APIError, requestID string) {
	WriteError(w, err.WithRequestID(requestID))
}

// GetStackTrace returns the current goroutine's stack trace.
func GetStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ValidationError is a field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field-level failures of one request body.
type ValidationErrors []ValidationError

// Add records a failure for field.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if any failure was recorded.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// ToAPIError converts the failures into one VALIDATION_ERROR with field details.
func (v ValidationErrors) ToAPIError() *APIError {
	if len(v) == 0 {
		return NewValidationError("validation failed")
	}
	msg := v[0].Message
	if len(v) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, len(v)-1)
	}
	return NewValidationError(msg).WithDetails(map[string]any{"fields": v})
}

// ErrorLogEntry is the structured log record written for a panic or internal error.
type ErrorLogEntry struct {
	CorrelationID string `json:"correlation_id"`
	ErrorCode     string `json:"error_code"`
	Message       string `json:"message"`
	StackTrace    string `json:"stack_trace"`
}

// NewErrorLogEntry creates a log entry capturing the current stack.
func NewErrorLogEntry(correlationID, errorCode, message string) *ErrorLogEntry {
	return &ErrorLogEntry{
		CorrelationID: correlationID,
		ErrorCode:     errorCode,
		Message:       message,
		StackTrace:    GetStackTrace(),
	}
}

// ToSlogAttrs returns the entry as slog key-value pairs.
func (e *ErrorLogEntry) ToSlogAttrs() []any {
	return []any{
		"correlation_id", e.CorrelationID,
		"error_code", e.ErrorCode,
		"message", e.Message,
		"stack_trace", e.StackTrace,
	}
}
