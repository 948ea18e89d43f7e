package relayerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(KindValidation, "count must be positive")
	assert.Equal(t, "validation: count must be positive", plain.Error())

	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(KindConnectivity, "xadd orders", cause)
	assert.Equal(t, "connectivity: xadd orders: dial tcp: connection refused", wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", New(KindNotFound, "no such group"), KindNotFound},
		{"wrapped in fmt", fmt.Errorf("engine: %w", New(KindScript, "boom")), KindScript},
		{"foreign error", errors.New("something else"), KindInternal},
		{"nested cause keeps outer kind", Wrap(KindTimeout, "call", New(KindConnectivity, "down")), KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindConnectivity, "down")))
	assert.False(t, IsRetryable(New(KindProtocol, "weird reply")))
	assert.False(t, IsRetryable(New(KindValidation, "bad input")))
	assert.False(t, IsRetryable(errors.New("unclassified")))
}

func TestValidationf(t *testing.T) {
	err := Validationf("priority %d out of range", 1200)
	require.Equal(t, KindValidation, err.Kind)
	assert.Contains(t, err.Error(), "priority 1200 out of range")
}
