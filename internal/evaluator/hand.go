package evaluator

import (
	"strings"

	"github.com/lox/blackjack/internal/deck"
)

// Blackjack is the best possible hand value
const Blackjack = 21

// Hand is the ordered list of cards held by the player or the dealer. It only
// grows by appending; scores are always derived from the cards.
type Hand []deck.Card

// NewHand creates a hand from multiple cards
func NewHand(cards ...deck.Card) Hand {
	h := make(Hand, len(cards))
	copy(h, cards)
	return h
}

// Add returns the hand with card appended. The receiver is not modified.
func (h Hand) Add(card deck.Card) Hand {
	next := make(Hand, len(h), len(h)+1)
	copy(next, h)
	return append(next, card)
}

// Cards returns a copy of the cards in the hand
func (h Hand) Cards() []deck.Card {
	return append([]deck.Card(nil), h...)
}

// String renders the hand as space separated cards ("A♠ 7♥")
func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// tally returns the total with every ace counted as 11, and the ace count
func (h Hand) tally() (total, aces int) {
	for _, c := range h {
		total += c.Points()
		if c.IsAce() {
			aces++
		}
	}
	return total, aces
}

// resolve downgrades aces from 11 to 1 while the hand is over 21 and
// returns the final score with the number of aces still counted high.
func (h Hand) resolve() (score, softAces int) {
	score, softAces = h.tally()
	for score > Blackjack && softAces > 0 {
		score -= 10
		softAces--
	}
	return score, softAces
}

// Score returns the best blackjack value of the hand
func (h Hand) Score() int {
	score, _ := h.resolve()
	return score
}

// IsSoft reports whether an ace is still counted as 11 in the final score
func (h Hand) IsSoft() bool {
	_, softAces := h.resolve()
	return softAces > 0
}

// IsBlackjack reports a natural: exactly two cards worth 21
func (h Hand) IsBlackjack() bool {
	return len(h) == 2 && h.Score() == Blackjack
}

// IsBust reports whether the hand is over 21
func (h Hand) IsBust() bool {
	return h.Score() > Blackjack
}

// Score is a convenience wrapper for scoring loose cards
func Score(cards ...deck.Card) int {
	return Hand(cards).Score()
}
