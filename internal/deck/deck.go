package deck

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
)

// Size is the number of cards in a full deck
const Size = 52

// ErrEmptyDeck is returned when drawing from a deck with no cards left
var ErrEmptyDeck = errors.New("deck is empty")

// Deck is an ordered stack of cards. The last card in the slice is the top
// of the deck and is drawn first.
type Deck struct {
	cards []Card
}

// NewDeck creates a new standard 52-card deck in a fixed, unshuffled order
func NewDeck() *Deck {
	d := &Deck{cards: make([]Card, 0, Size)}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
	return d
}

// NewShuffledDeck creates a full deck and shuffles it with rng
func NewShuffledDeck(rng *rand.Rand) *Deck {
	d := NewDeck()
	d.Shuffle(rng)
	return d
}

// NewOrderedDeck creates a deck whose draws return cards in the order given.
// It is used to replay known deals.
func NewOrderedDeck(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	for i, c := range cards {
		d.cards[len(cards)-1-i] = c
	}
	return d
}

// FromStack rebuilds a deck from its stored stack order (top card last)
func FromStack(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// Shuffle permutes the deck in place using Fisher-Yates
func (d *Deck) Shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the top card
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}
	top := len(d.cards) - 1
	card := d.cards[top]
	d.cards = d.cards[:top]
	return card, nil
}

// DealInitial draws n cards in draw order. The deck is left untouched when
// fewer than n cards remain.
func (d *Deck) DealInitial(n int) ([]Card, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot deal %d cards", n)
	}
	if n > len(d.cards) {
		return nil, fmt.Errorf("deal %d cards with %d remaining: %w", n, len(d.cards), ErrEmptyDeck)
	}
	cards := make([]Card, n)
	for i := range cards {
		cards[i], _ = d.Draw()
	}
	return cards, nil
}

// Peek returns the top card without removing it
func (d *Deck) Peek() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[len(d.cards)-1], true
}

// Remaining returns the number of cards left in the deck
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// IsEmpty returns true if the deck has no cards left
func (d *Deck) IsEmpty() bool {
	return len(d.cards) == 0
}

// Stack returns a copy of the remaining cards, top card last
func (d *Deck) Stack() []Card {
	return append([]Card(nil), d.cards...)
}

// Clone returns an independent copy of the deck
func (d *Deck) Clone() *Deck {
	return FromStack(d.cards)
}
