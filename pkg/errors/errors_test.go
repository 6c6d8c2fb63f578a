package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code      int
		expected  ErrorType
		retryable bool
	}{
		{403, ErrorTypePermanent, false},
		{404, ErrorTypePermanent, false},
		{500, ErrorTypeStatus, true},
		{429, ErrorTypeStatus, true},
		{301, ErrorTypeStatus, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := FromStatus(tt.code)
			assert.Equal(t, tt.expected, err.Type)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, IsRetryable(err.Type))
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	err := New(ErrorTypeNetwork, "GET failed", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("attempt 1: %w", err)

	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.Equal(t, ErrorTypeNetwork, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeNetwork))
	assert.False(t, Is(nil, ErrorTypeNetwork))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(io.EOF))
	assert.Contains(t, err.Error(), "network error")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.True(t, IsRetryable(ErrorTypeTimeout))
	assert.False(t, IsRetryable(ErrorTypePermanent))
	assert.False(t, IsRetryable(ErrorTypeFilesystem))
	assert.False(t, IsRetryable(ErrorTypeDiscovery))
}
