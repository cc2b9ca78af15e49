package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestConstructorsSetTypeAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		typ    ErrorType
		status int
	}{
		{"unsupported type", NewUnsupportedTypeError("text/plain"), ErrorTypeUnsupportedType, http.StatusUnsupportedMediaType},
		{"too large", NewFileTooLargeError(6<<20, 5<<20), ErrorTypeFileTooLarge, http.StatusRequestEntityTooLarge},
		{"no file", NewNoFileSelectedError(), ErrorTypeNoFileSelected, http.StatusConflict},
		{"already submitting", NewAlreadySubmittingError(), ErrorTypeAlreadySubmitting, http.StatusConflict},
		{"transport", NewTransportError("dial failed", nil), ErrorTypeTransport, http.StatusBadGateway},
		{"timeout", NewTimeoutError("timed out", context.DeadlineExceeded), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"server", NewServerError(500, "model unavailable"), ErrorTypeServer, http.StatusBadGateway},
		{"shape", NewInvalidResultShapeError("missing confidence", nil), ErrorTypeInvalidResultShape, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.status, GetStatusCode(tt.err))
		})
	}
}

func TestFileTooLargeMessage(t *testing.T) {
	err := NewFileTooLargeError(200<<20, 100<<20)
	assert.Equal(t, "File size must not exceed 100MB.", err.Message)
}

func TestIsTypeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewAlreadySubmittingError())

	assert.True(t, IsType(wrapped, ErrorTypeAlreadySubmitting))
	assert.False(t, IsType(wrapped, ErrorTypeNoFileSelected))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeInternal))
}

func TestIsTransportIncludesTimeout(t *testing.T) {
	assert.True(t, IsTransport(NewTransportError("reset", nil)))
	assert.True(t, IsTransport(NewTimeoutError("deadline", nil)))
	assert.False(t, IsTransport(NewServerError(500, "boom")))
}

func TestUnwrapExposesCause(t *testing.T) {
	err := NewTimeoutError("deadline", context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "caused by")
}

func TestUserMessageFallbackOrder(t *testing.T) {
	assert.Equal(t, "model unavailable", UserMessage(NewServerError(500, "model unavailable")))
	assert.Equal(t, "connection refused", UserMessage(errors.New("connection refused")))
	assert.Equal(t, GenericFailureMessage, UserMessage(emptyError{}))
	assert.Equal(t, "", UserMessage(nil))
}

func TestGetStatusCodeDefault(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(errors.New("x")))
}
