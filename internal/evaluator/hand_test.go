package evaluator

import (
	"testing"

	"github.com/lox/blackjack/internal/deck"
	"github.com/stretchr/testify/assert"
)

func hand(s string) Hand {
	return NewHand(deck.MustParseCards(s)...)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		cards string
		want  int
	}{
		{"empty", "", 0},
		{"two low cards", "2h3d", 5},
		{"two faces", "KcQs", 20},
		{"ace ten", "AhTd", 21},
		{"three aces", "AcAsAh", 13},
		{"two aces", "AdAh", 12},
		{"ace five ace", "Ah5dAc", 17},
		{"bust", "TsJc2h", 22},
		{"four aces and a seven", "AsAhAdAc7s", 21},
		{"ace downgraded by faces", "AsKdQh", 21},
		{"single ace", "As", 11},
		{"seven eight", "7c8s", 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hand(tt.cards).Score(); got != tt.want {
				t.Errorf("Score(%s) = %d, want %d", tt.cards, got, tt.want)
			}
		})
	}
}

func TestScoreNeverBustsWhileAceCanDowngrade(t *testing.T) {
	all := deck.NewDeck().Stack()
	for _, a := range all {
		for _, b := range all {
			if a == b {
				continue
			}
			h := NewHand(a, b)
			raw, aces := h.tally()
			score := h.Score()

			assert.LessOrEqual(t, score, raw)
			assert.GreaterOrEqual(t, score, raw-10*aces)
			if score > Blackjack {
				_, softAces := h.resolve()
				assert.Zero(t, softAces, "%s busts with an ace still high", h)
			}
		}
	}
}

func TestIsSoft(t *testing.T) {
	tests := []struct {
		cards string
		want  bool
	}{
		{"As6d", true},
		{"AsAd", true},
		{"As6dTh", false},
		{"Ts7d", false},
		{"AsAdAh", true},
		{"As5d5h", true},
		{"9s", false},
	}
	for _, tt := range tests {
		if got := hand(tt.cards).IsSoft(); got != tt.want {
			t.Errorf("IsSoft(%s) = %v, want %v", tt.cards, got, tt.want)
		}
	}
}

func TestIsBlackjack(t *testing.T) {
	assert.True(t, hand("AsTd").IsBlackjack())
	assert.True(t, hand("KhAc").IsBlackjack())
	assert.False(t, hand("7s7d7h").IsBlackjack(), "three card 21 is not a blackjack")
	assert.False(t, hand("AsAd").IsBlackjack())
	assert.False(t, hand("As").IsBlackjack())
}

func TestIsBust(t *testing.T) {
	assert.True(t, hand("TsJc2h").IsBust())
	assert.False(t, hand("TsJcAh").IsBust())
}

func TestAddDoesNotMutate(t *testing.T) {
	h := hand("Ts6d")
	next := h.Add(deck.Card{Suit: deck.Hearts, Rank: deck.Five})

	assert.Len(t, h, 2)
	assert.Len(t, next, 3)
	assert.Equal(t, 21, next.Score())
	assert.Equal(t, "T♠ 6♦ 5♥", next.String())
}

func TestBustRisk(t *testing.T) {
	tests := []struct {
		name  string
		cards string
		want  float64
	}{
		{"ten is safe", "4s6d", 0.0},
		{"eleven only risks an ace", "5s6d", 0.1},
		{"twelve", "Ts2d", 0.2},
		{"sixteen", "Ts6d", 0.6},
		{"soft seventeen scores as seventeen", "As6d", 0.7},
		{"nineteen", "Ts9d", 0.9},
		{"twenty always busts", "TsQd", 1.0},
		{"already bust", "TsQd5h", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, hand(tt.cards).BustRisk(), 1e-9)
		})
	}
}

func TestBustRiskBounded(t *testing.T) {
	all := deck.NewDeck().Stack()
	for i := 0; i+2 < len(all); i++ {
		r := NewHand(all[i], all[i+1], all[i+2]).BustRisk()
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}
