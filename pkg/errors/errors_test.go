package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := NewConnectError("10.0.0.1:5000", originalErr)

	assert.Same(t, originalErr, err.Cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "CONNECT_FAILED: cannot reach 10.0.0.1:5000", err.Reason())
	assert.Equal(t, "10.0.0.1:5000", err.Context["address"])
	assert.True(t, errors.Is(err, originalErr))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	assert.Equal(t, "value", err.Context["field"])
	assert.Equal(t, 42, err.Context["count"])
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"invalid input", NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{"not found", NewNotFoundError("tile"), ErrCodeNotFound, http.StatusNotFound},
		{"call busy", NewCallBusyError(), ErrCodeCallBusy, http.StatusConflict},
		{"handshake", NewHandshakeError("video", errors.New("eof")), ErrCodeHandshakeFailed, http.StatusBadGateway},
		{"device", NewDeviceUnavailableError("camera", nil), ErrCodeDeviceUnavailable, http.StatusServiceUnavailable},
		{"io", NewIOError("send failed", errors.New("broken pipe")), ErrCodeIO, http.StatusBadGateway},
		{"protocol", NewProtocolViolationError("bad framing", nil), ErrCodeProtocolViolation, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", 400)

	assert.Same(t, appErr, GetAppError(appErr))
	assert.Same(t, appErr, GetAppError(fmt.Errorf("outer: %w", appErr)))
	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}

func TestReasonOf(t *testing.T) {
	require.Empty(t, ReasonOf(nil))
	assert.Equal(t, "plain", ReasonOf(errors.New("plain")))
	assert.Equal(t, "HANDSHAKE_FAILED: audio relay handshake failed",
		ReasonOf(fmt.Errorf("dial: %w", NewHandshakeError("audio", errors.New("eof")))))
}
