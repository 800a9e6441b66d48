package dealer

import (
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/evaluator"
)

// StopReason explains why the dealer stopped drawing
type StopReason string

const (
	StoppedStand     StopReason = "stand"
	StoppedBust      StopReason = "bust"
	StoppedDeckEmpty StopReason = "deck_empty"
)

// Turn is the outcome of the dealer playing out a hand
type Turn struct {
	Hand   evaluator.Hand
	Drawn  []deck.Card
	Score  int
	Reason StopReason
}

// Busted reports whether the dealer finished over 21
func (t Turn) Busted() bool {
	return t.Reason == StoppedBust
}

// PlayTurn draws for the dealer until the policy stands, the dealer busts
// or the deck runs out. Drawing never continues past a bust. The only
// mutation is drawing from d.
func PlayTurn(d *deck.Deck, hand evaluator.Hand, playerScore int, policy Policy) Turn {
	turn := Turn{Hand: hand}
	for {
		if turn.Hand.IsBust() {
			turn.Reason = StoppedBust
			break
		}
		if !policy.ShouldHit(turn.Hand, playerScore) {
			turn.Reason = StoppedStand
			break
		}
		card, err := d.Draw()
		if err != nil {
			turn.Reason = StoppedDeckEmpty
			break
		}
		turn.Hand = turn.Hand.Add(card)
		turn.Drawn = append(turn.Drawn, card)
	}
	turn.Score = turn.Hand.Score()
	return turn
}

// React gives the dealer a single draw decision, used when the house lets
// the dealer respond to each player hit. It never draws on a busted hand.
func React(d *deck.Deck, hand evaluator.Hand, playerScore int, policy Policy) (evaluator.Hand, *deck.Card) {
	if hand.IsBust() || !policy.ShouldHit(hand, playerScore) {
		return hand, nil
	}
	card, err := d.Draw()
	if err != nil {
		return hand, nil
	}
	return hand.Add(card), &card
}
