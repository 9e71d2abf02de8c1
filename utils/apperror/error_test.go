package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsComparesCode(t *testing.T) {
	err := New(CodeSlippageExceeded, WithContext("leg 2"))
	wrapped := fmt.Errorf("execute: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSlippageExceeded))
	assert.False(t, errors.Is(wrapped, ErrDeadlineExpired))
	assert.Equal(t, CodeSlippageExceeded, GetCode(wrapped))
	assert.Contains(t, err.Error(), "leg 2")
}

func TestWrap(t *testing.T) {
	t.Run("plain error gets code", func(t *testing.T) {
		base := errors.New("connection refused")
		err := Wrap(base, CodeAdapterError, "getReserves")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAdapter))
		assert.True(t, errors.Is(err, base))
	})

	t.Run("app error keeps code", func(t *testing.T) {
		orig := New(CodeUnauthorizedCallback)
		err := Wrap(orig, CodeAdapterError, "swap")
		assert.Equal(t, CodeUnauthorizedCallback, GetCode(err))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeAdapterError, ""))
	})
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(CodeSlippageExceeded), true},
		{New(CodeDeadlineExpired), true},
		{New(CodeAdapterError), false},
		{New(CodeUnauthorizedCallback), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(string(GetCode(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestUnknownCodeMessage(t *testing.T) {
	err := New(Code("SOMETHING_NEW"))
	assert.Equal(t, "SOMETHING_NEW", err.Message)
	assert.True(t, HasCode(fmt.Errorf("x: %w", err), Code("SOMETHING_NEW")))
}
