package game

import "errors"

var (
	// ErrInvalidBet is returned when a bet is zero or negative
	ErrInvalidBet = errors.New("invalid bet")
	// ErrInsufficientFunds is returned when a bet or double down exceeds the balance
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRoundNotActive is returned for player actions outside AwaitingPlayerAction
	ErrRoundNotActive = errors.New("round is not active")
	// ErrAlreadySettled is returned when settling a round a second time
	ErrAlreadySettled = errors.New("round already settled")
	// ErrCorruptState is returned by Restore when persisted state is inconsistent
	ErrCorruptState = errors.New("corrupt round state")
)
