package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Call failure reasons
	ErrCodeConnectFailed     ErrorCode = "CONNECT_FAILED"
	ErrCodeHandshakeFailed   ErrorCode = "HANDSHAKE_FAILED"
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	ErrCodeIO                ErrorCode = "IO_ERROR"
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeCallBusy          ErrorCode = "CALL_BUSY"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Reason is the short human-readable form shown to a user.
func (e *AppError) Reason() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

func NewCallBusyError() *AppError {
	return NewAppError(ErrCodeCallBusy, "a call is already active", http.StatusConflict)
}

func NewConnectError(addr string, cause error) *AppError {
	return WrapError(cause, ErrCodeConnectFailed, fmt.Sprintf("cannot reach %s", addr), http.StatusBadGateway).
		WithContext("address", addr)
}

func NewHandshakeError(relay string, cause error) *AppError {
	return WrapError(cause, ErrCodeHandshakeFailed, fmt.Sprintf("%s relay handshake failed", relay), http.StatusBadGateway).
		WithContext("relay", relay)
}

func NewProtocolViolationError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeProtocolViolation, message, http.StatusBadGateway)
}

func NewIOError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeIO, message, http.StatusBadGateway)
}

func NewDeviceUnavailableError(device string, cause error) *AppError {
	return WrapError(cause, ErrCodeDeviceUnavailable, fmt.Sprintf("%s unavailable", device), http.StatusServiceUnavailable).
		WithContext("device", device)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// ReasonOf returns the short failure reason for any error.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Reason()
	}
	return err.Error()
}
