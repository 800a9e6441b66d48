package server

import (
	"errors"
	"net/http"

	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
)

var (
	// ErrRoundBusy is returned when another action on the same round (or
	// another start for the same user) is in flight
	ErrRoundBusy = errors.New("round is busy")
	// ErrRoundInProgress is returned when starting a round while one is unfinished
	ErrRoundInProgress = errors.New("a round is already in progress")
	// ErrForbidden is returned when acting on another user's round
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when no user is identified
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidRequest is returned for malformed requests
	ErrInvalidRequest = errors.New("invalid request")
)

// Error codes shared by the HTTP and websocket APIs
const (
	CodeInvalidBet        = "invalid_bet"
	CodeInsufficientFunds = "insufficient_funds"
	CodeRoundNotActive    = "round_not_active"
	CodeRoundBusy         = "round_busy"
	CodeRoundInProgress   = "round_in_progress"
	CodeForbidden         = "forbidden"
	CodeUnauthenticated   = "unauthenticated"
	CodeAuthUnavailable   = "auth_unavailable"
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

// ErrorCode maps an error to its API code and HTTP status
func ErrorCode(err error) (string, int) {
	switch {
	case err == nil:
		return "", http.StatusOK
	case errors.Is(err, ErrRoundBusy):
		return CodeRoundBusy, http.StatusConflict
	case errors.Is(err, ErrRoundInProgress), errors.Is(err, storage.ErrActiveRound):
		return CodeRoundInProgress, http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return CodeForbidden, http.StatusForbidden
	case errors.Is(err, auth.ErrUnavailable):
		return CodeAuthUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return CodeUnauthenticated, http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest, http.StatusBadRequest
	case errors.Is(err, game.ErrInvalidBet):
		return CodeInvalidBet, http.StatusBadRequest
	case errors.Is(err, game.ErrInsufficientFunds):
		return CodeInsufficientFunds, http.StatusBadRequest
	case errors.Is(err, game.ErrRoundNotActive) && errors.Is(err, storage.ErrNotFound):
		return CodeRoundNotActive, http.StatusNotFound
	case errors.Is(err, game.ErrRoundNotActive):
		return CodeRoundNotActive, http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return CodeNotFound, http.StatusNotFound
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}
