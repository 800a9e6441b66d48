package game

import (
	"time"

	"github.com/lox/blackjack/internal/evaluator"
	"github.com/shopspring/decimal"
)

var (
	blackjackMultiplier = decimal.RequireFromString("2.5")
	winMultiplier       = decimal.NewFromInt(2)
	drawMultiplier      = decimal.NewFromInt(1)
)

// Settlement is the immutable result of a completed round
type Settlement struct {
	RoundID     string    `json:"round_id"`
	UserID      string    `json:"user_id"`
	Outcome     Outcome   `json:"outcome"`
	Bet         int64     `json:"bet_amount"`
	Payout      int64     `json:"payout"`
	PlayerScore int       `json:"player_score"`
	DealerScore int       `json:"dealer_score"`
	Blackjack   bool      `json:"blackjack"`
	Doubled     bool      `json:"doubled"`
	SettledAt   time.Time `json:"settled_at"`
}

// Net is the player's profit or loss for the round
func (s Settlement) Net() int64 {
	return s.Payout - s.Bet
}

// DetermineResult compares final scores. A player bust loses even if the
// dealer also busted.
func DetermineResult(playerScore, dealerScore int) Outcome {
	switch {
	case playerScore > evaluator.Blackjack:
		return Lose
	case dealerScore > evaluator.Blackjack:
		return Win
	case playerScore > dealerScore:
		return Win
	case playerScore == dealerScore:
		return Draw
	default:
		return Lose
	}
}

// Payout returns the chips handed back to the player, including the returned
// stake. Blackjack pays 3:2 rounded down to a whole chip.
func Payout(outcome Outcome, bet int64, blackjack bool) int64 {
	var m decimal.Decimal
	switch outcome {
	case Win:
		m = winMultiplier
		if blackjack {
			m = blackjackMultiplier
		}
	case Draw:
		m = drawMultiplier
	default:
		return 0
	}
	return decimal.NewFromInt(bet).Mul(m).Floor().IntPart()
}
