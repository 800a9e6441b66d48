package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocks(t *testing.T) {
	t.Parallel()
	locks := newKeyedLocks()

	unlock, ok := locks.TryLock("a")
	require.True(t, ok)
	assert.True(t, locks.Held("a"))

	_, ok = locks.TryLock("a")
	assert.False(t, ok, "second holder is rejected")

	other, ok := locks.TryLock("b")
	require.True(t, ok, "keys are independent")
	other()

	unlock()
	unlock() // releasing twice is harmless
	assert.False(t, locks.Held("a"))

	again, ok := locks.TryLock("a")
	require.True(t, ok)
	again()
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("x: %w", game.ErrInvalidBet), CodeInvalidBet, http.StatusBadRequest},
		{storage.ErrInsufficientFunds, CodeInsufficientFunds, http.StatusBadRequest},
		{game.ErrInsufficientFunds, CodeInsufficientFunds, http.StatusBadRequest},
		{game.ErrRoundNotActive, CodeRoundNotActive, http.StatusConflict},
		{fmt.Errorf("%w: %w", game.ErrRoundNotActive, storage.ErrNotFound), CodeRoundNotActive, http.StatusNotFound},
		{ErrRoundBusy, CodeRoundBusy, http.StatusConflict},
		{ErrRoundInProgress, CodeRoundInProgress, http.StatusConflict},
		{storage.ErrActiveRound, CodeRoundInProgress, http.StatusConflict},
		{ErrForbidden, CodeForbidden, http.StatusForbidden},
		{ErrUnauthenticated, CodeUnauthenticated, http.StatusUnauthorized},
		{ErrInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
		{storage.ErrNotFound, CodeNotFound, http.StatusNotFound},
		{errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		code, status := ErrorCode(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestNewErrorDataHidesInternalErrors(t *testing.T) {
	t.Parallel()
	data := NewErrorData(errors.New("disk on fire"))
	assert.Equal(t, CodeInternal, data.Code)
	assert.Equal(t, "internal error", data.Message)
}
