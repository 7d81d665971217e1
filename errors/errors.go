package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified webquery error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates whether a retry policy may act on this error.
	Retryable bool `json:"retryable"`
	// StatusCode is the HTTP status observed, 0 when no response arrived.
	StatusCode int `json:"status_code,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Transport wraps a connection-level failure.
func Transport(cause error) *AppError {
	return &AppError{
		Code: ErrCodeTransport, Message: "transport failed before a complete response was received",
		Retryable: true, Cause: cause,
	}
}

// Timeout reports an exchange aborted by its watchdog after d.
func Timeout(operation string, d fmt.Stringer) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out after %s", operation, d),
		Retryable: true,
		Details:   map[string]any{"operation": operation},
	}
}

// HTTPStatus reports a completed exchange with an error status.
func HTTPStatus(status int, description string) *AppError {
	return &AppError{
		Code: ErrCodeHTTPStatus, Message: fmt.Sprintf("HTTP %d %s", status, description),
		Retryable: status >= 500 || status == 429, StatusCode: status,
	}
}

// Canceled reports a caller-initiated cancellation.
func Canceled(cause error) *AppError {
	return &AppError{Code: ErrCodeCanceled, Message: "exchange canceled", Cause: cause}
}

// Configuration reports a programmer error in request settings.
func Configuration(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Deserialization wraps a failure to materialize response content.
func Deserialization(contentType string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDeserialization, Message: "could not deserialize response content",
		Details: map[string]any{"content_type": contentType}, Cause: cause,
	}
}

// Serialization wraps a failure to encode a request entity.
func Serialization(cause error) *AppError {
	return &AppError{Code: ErrCodeSerialization, Message: "could not serialize request entity", Cause: cause}
}

// Cache wraps a cache provider failure.
func Cache(op string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeCache, Message: fmt.Sprintf("cache %s failed", op),
		Details: map[string]any{"operation": op}, Cause: cause,
	}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Is, As and Join re-export the standard helpers so callers importing this
// package under the name "errors" keep access to them.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	Join = stderrors.Join
)
