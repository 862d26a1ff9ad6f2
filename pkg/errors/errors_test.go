package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

var (
	errInner = errors.New("inner")
	errPlain = errors.New("plain error")
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, cadenaerr.ExitSuccess},
		{"general error", cadenaerr.ErrGeneral, cadenaerr.ExitGeneral},
		{"input error", cadenaerr.ErrInvalidInput, cadenaerr.ExitInput},
		{"user rejected", cadenaerr.ErrUserRejected, cadenaerr.ExitAuth},
		{"no provider", cadenaerr.ErrNoProvider, cadenaerr.ExitNotFound},
		{"reverted", cadenaerr.ErrReverted, cadenaerr.ExitPermission},
		{"insufficient funds", cadenaerr.ErrInsufficientFunds, cadenaerr.ExitPermission},
		{"plain error", errPlain, cadenaerr.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, cadenaerr.ExitCode(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want cadenaerr.Kind
	}{
		{"nil", nil, cadenaerr.KindNone},
		{"no provider", cadenaerr.ErrNoProvider, cadenaerr.KindNoProvider},
		{"user rejected", cadenaerr.ErrUserRejected, cadenaerr.KindUserRejected},
		{"amount", cadenaerr.ErrInvalidAmount, cadenaerr.KindInvalidInput},
		{"message too long", cadenaerr.ErrMessageTooLong, cadenaerr.KindInvalidInput},
		{"rpc", cadenaerr.ErrRPC, cadenaerr.KindRPC},
		{"reverted", cadenaerr.ErrReverted, cadenaerr.KindReverted},
		{"insufficient funds is a revert", cadenaerr.ErrInsufficientFunds, cadenaerr.KindReverted},
		{"stale", cadenaerr.ErrStaleIdentity, cadenaerr.KindStaleIdentity},
		{"timeout", cadenaerr.ErrTimeout, cadenaerr.KindTimeout},
		{"deadline", fmt.Errorf("waiting: %w", context.DeadlineExceeded), cadenaerr.KindTimeout},
		{"plain error", errPlain, cadenaerr.KindRPC},
		{"wrapped coded error", fmt.Errorf("submit: %w", cadenaerr.ErrUserRejected), cadenaerr.KindUserRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cadenaerr.KindOf(tt.err))
		})
	}
}

func TestWithCause(t *testing.T) {
	t.Parallel()

	err := cadenaerr.WithCause(cadenaerr.ErrRPC, errInner)
	require.ErrorIs(t, err, cadenaerr.ErrRPC)
	require.ErrorIs(t, err, errInner)
	assert.Equal(t, "provider request failed: inner", err.Error())
	assert.Equal(t, cadenaerr.KindRPC, cadenaerr.KindOf(err))

	// The sentinel itself is never mutated.
	assert.NoError(t, cadenaerr.ErrRPC.Cause)

	plain := cadenaerr.WithCause(errPlain, errInner)
	require.ErrorIs(t, plain, errPlain)
	require.ErrorIs(t, plain, errInner)

	assert.Equal(t, errInner, cadenaerr.WithCause(nil, errInner))
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, cadenaerr.Wrap(nil, "ctx"))
	})

	t.Run("keeps code and kind", func(t *testing.T) {
		t.Parallel()
		wrapped := cadenaerr.Wrap(cadenaerr.ErrTimeout, "deposit %s", "0xabc")
		require.ErrorIs(t, wrapped, cadenaerr.ErrTimeout)
		assert.Equal(t, "TIMEOUT", cadenaerr.Code(wrapped))
		assert.Equal(t, cadenaerr.KindTimeout, cadenaerr.KindOf(wrapped))
		assert.Contains(t, wrapped.Error(), "deposit 0xabc")
	})

	t.Run("plain error becomes general", func(t *testing.T) {
		t.Parallel()
		wrapped := cadenaerr.Wrap(errPlain, "loading")
		assert.Equal(t, "GENERAL_ERROR", cadenaerr.Code(wrapped))
		require.ErrorIs(t, wrapped, errPlain)
	})
}

func TestWithDetailsAndSuggestion(t *testing.T) {
	t.Parallel()

	err := cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{
		"input": "1.2.3",
		"field": "deposit",
	})
	assert.Equal(t, "invalid amount format (field: deposit) (input: 1.2.3)", err.Error())

	err = cadenaerr.WithSuggestion(err, "use a decimal like 0.5")
	var ce *cadenaerr.CadenaError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "use a decimal like 0.5", ce.Suggestion)
	assert.Equal(t, "1.2.3", ce.Details["input"])
	assert.Equal(t, cadenaerr.KindInvalidInput, ce.Kind)

	plain := cadenaerr.WithSuggestion(errPlain, "try again")
	require.ErrorAs(t, plain, &ce)
	assert.Equal(t, "GENERAL_ERROR", ce.Code)
	assert.Equal(t, "try again", ce.Suggestion)
}

func TestIsComparesCodes(t *testing.T) {
	t.Parallel()

	custom := cadenaerr.New("USER_REJECTED", "nope")
	require.ErrorIs(t, custom, cadenaerr.ErrUserRejected)
	assert.NotErrorIs(t, custom, cadenaerr.ErrNoProvider)
	assert.True(t, cadenaerr.Is(custom, cadenaerr.ErrUserRejected))
}
