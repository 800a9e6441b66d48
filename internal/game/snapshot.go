package game

import (
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/evaluator"
)

// CardView is a card as shown to the player. The dealer's hole card is sent
// as {"hidden":true} until the round completes.
type CardView struct {
	Suit   string `json:"suit,omitempty"`
	Value  string `json:"value,omitempty"`
	Code   string `json:"code,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// NewCardView converts a card for display
func NewCardView(c deck.Card) CardView {
	return CardView{Suit: c.Suit.Name(), Value: c.Rank.Label(), Code: c.Code()}
}

// Card converts the view back into a card. Hidden views report false.
func (v CardView) Card() (deck.Card, bool) {
	if v.Hidden || v.Code == "" {
		return deck.Card{}, false
	}
	c, err := deck.ParseCard(v.Code)
	if err != nil {
		return deck.Card{}, false
	}
	return c, true
}

// Snapshot is the caller's view of a round
type Snapshot struct {
	RoundID     string     `json:"round_id"`
	PlayerHand  []CardView `json:"player_hand"`
	DealerHand  []CardView `json:"dealer_hand"`
	PlayerScore int        `json:"player_score"`
	DealerScore int        `json:"dealer_score"`
	BetAmount   int64      `json:"bet_amount"`
	Balance     int64      `json:"balance"`
	Phase       Phase      `json:"phase"`
	Result      Outcome    `json:"result,omitempty"`
	Payout      *int64     `json:"payout,omitempty"`
	Blackjack   bool       `json:"blackjack"`
	Doubled     bool       `json:"doubled,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Snapshot builds the player's view of the round with the given balance.
// Before completion the dealer's second card is hidden and the dealer score
// covers the up-card only.
func (r *Round) Snapshot(balance int64) Snapshot {
	s := Snapshot{
		RoundID:     r.id,
		PlayerHand:  views(r.player),
		PlayerScore: r.playerScore,
		BetAmount:   r.bet,
		Balance:     balance,
		Phase:       r.phase,
		Doubled:     r.doubled,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}

	if r.phase == Complete {
		s.DealerHand = views(r.dealer)
		s.DealerScore = r.dealerScore
		if r.settlement != nil {
			payout := r.settlement.Payout
			s.Result = r.settlement.Outcome
			s.Payout = &payout
			s.Blackjack = r.settlement.Blackjack
		}
		return s
	}

	s.DealerHand = views(r.dealer)
	if len(s.DealerHand) > 1 {
		s.DealerHand[1] = CardView{Hidden: true}
	}
	if len(r.dealer) > 0 {
		s.DealerScore = evaluator.Score(r.dealer[0])
	}
	return s
}

// IsComplete reports whether the snapshot carries a result
func (s Snapshot) IsComplete() bool {
	return s.Phase == Complete
}

func views(h evaluator.Hand) []CardView {
	out := make([]CardView, len(h))
	for i, c := range h {
		out[i] = NewCardView(c)
	}
	return out
}
