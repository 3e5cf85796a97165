package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes surfaced by the device-trust subsystem
const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// Device trust errors
	ErrCodeAccountBlocked      ErrorCode = "ACCOUNT_BLOCKED"
	ErrCodeDeviceLimitExceeded ErrorCode = "DEVICE_LIMIT_EXCEEDED"
	ErrCodeDeviceConflict      ErrorCode = "DEVICE_CONFLICT"
	ErrCodeRemovalThrottled    ErrorCode = "REMOVAL_THROTTLED"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"

	// Token errors. Expired and forged tokens share this code on purpose.
	ErrCodeTokenInvalid ErrorCode = "TOKEN_INVALID"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetDetails extracts the details from an error
// Returns nil if the error is not a structured Error
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest

	case ErrCodeTokenInvalid, ErrCodeUnauthorized:
		return http.StatusUnauthorized

	case ErrCodeForbidden, ErrCodeAccountBlocked, ErrCodeDeviceLimitExceeded:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeDeviceConflict:
		return http.StatusConflict

	case ErrCodeRemovalThrottled, ErrCodeRateLimited:
		return http.StatusTooManyRequests

	case ErrCodeTimeout:
		return http.StatusServiceUnavailable

	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// ValidationFailed creates a "validation failed" error
func ValidationFailed(details map[string]interface{}) *Error {
	return New(ErrCodeValidationFailed, "validation failed").WithDetails(details)
}

// AccountBlocked is returned when a blocked account attempts to register a device
func AccountBlocked(reason string) *Error {
	return New(ErrCodeAccountBlocked, "account is blocked").WithDetail("reason", reason)
}

// DeviceLimitExceeded signals that a registration pushed the account over its device cap
func DeviceLimitExceeded(activeCount, limit int) *Error {
	return Newf(ErrCodeDeviceLimitExceeded, "device limit exceeded: %d active, limit %d", activeCount, limit).
		WithDetails(map[string]interface{}{
			"active_count": activeCount,
			"limit":        limit,
		})
}

// DeviceConflict is returned when a fingerprint is already active under another account
func DeviceConflict() *Error {
	return New(ErrCodeDeviceConflict, "device is registered to another account")
}

// RemovalThrottled is returned while the removal cooldown is still running
func RemovalThrottled(retryAfterSeconds int64) *Error {
	return New(ErrCodeRemovalThrottled, "device removal is temporarily throttled").
		WithDetail("retry_after_seconds", retryAfterSeconds)
}

// TokenInvalid wraps the internal verification failure reason behind a single code
func TokenInvalid(reason error) *Error {
	if reason == nil {
		return New(ErrCodeTokenInvalid, "invalid or expired token")
	}
	return Wrap(reason, ErrCodeTokenInvalid, "invalid or expired token")
}

// Internal creates an "internal error"
func Internal(message string) *Error {
	return New(ErrCodeInternal, message)
}

// InternalWrap wraps a storage or infrastructure failure. Context deadline and
// cancellation errors are mapped to ErrCodeTimeout so callers can retry.
func InternalWrap(err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeTimeout, message)
	}
	return Wrap(err, ErrCodeInternal, message)
}
