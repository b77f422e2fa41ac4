// Package errors provides the structured error type rendered by the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType categorises an error for logging and status mapping.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"
	TypeNotFound    ErrorType = "not_found"
	TypeRateLimited ErrorType = "rate_limited"
	TypeUnavailable ErrorType = "unavailable"
	TypeInternal    ErrorType = "internal"
)

// Error is a structured error with a type, a client-facing message and optional context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
	// RetryAfter is sent as the Retry-After header when positive.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to a status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when set.
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

// RateLimitedError is returned when a client must back off and reconnect later.
func RateLimitedError(message string, cause error, retryAfter time.Duration) *Error {
	return &Error{Type: TypeRateLimited, Message: message, Cause: cause, RetryAfter: retryAfter}
}

// UnavailableError signals the service is shutting down or cannot serve the request now.
func UnavailableError(message string, cause error) *Error {
	return &Error{Type: TypeUnavailable, Message: message, Cause: cause}
}

func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// WithContext adds a context field (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Type       ErrorType      `json:"type"`
	RetryAfter int            `json:"retry_after,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:      e.Message,
		Type:       e.Type,
		RetryAfter: e.RetryAfterSeconds(),
		Context:    e.Context,
	}
}

// AsStructuredError returns err as *Error, wrapping unknown errors as internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
