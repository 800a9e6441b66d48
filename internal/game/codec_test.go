package game

import (
	"encoding/json"
	"testing"

	"github.com/lox/blackjack/internal/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	r := startRound(t, "Ts2hTd3c4d5s", 10, cfg)
	require.NoError(t, r.Hit())

	data, err := json.Marshal(r)
	require.NoError(t, err)

	restored, err := Restore(data, cfg)
	require.NoError(t, err)

	assert.Equal(t, r.ID(), restored.ID())
	assert.Equal(t, r.UserID(), restored.UserID())
	assert.Equal(t, r.Phase(), restored.Phase())
	assert.Equal(t, r.PlayerHand(), restored.PlayerHand())
	assert.Equal(t, r.DealerHand(), restored.DealerHand())
	assert.Equal(t, r.PlayerScore(), restored.PlayerScore())
	assert.Equal(t, r.DealerScore(), restored.DealerScore())
	assert.Equal(t, r.CardsRemaining(), restored.CardsRemaining())
	assert.Equal(t, eventTypes(r), eventTypes(restored))
	assert.True(t, r.CreatedAt().Equal(restored.CreatedAt()))

	// both copies play out identically
	require.NoError(t, r.Stand())
	require.NoError(t, restored.Stand())
	want, _ := r.Settlement()
	got, _ := restored.Settlement()
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.Equal(t, want.Payout, got.Payout)
	assert.Equal(t, r.DealerHand(), restored.DealerHand())
}

func TestRestoreCompletedRound(t *testing.T) {
	cfg := testConfig(t)
	r := startRound(t, "Ts9hTd7c", 10, cfg)
	require.NoError(t, r.Stand())

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var restored Round
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, Complete, restored.Phase())
	s, ok := restored.Settlement()
	require.True(t, ok)
	assert.Equal(t, Win, s.Outcome)
	assert.ErrorIs(t, restored.Hit(), ErrRoundNotActive)
}

func TestRestoreStoresCardsAsText(t *testing.T) {
	r := startRound(t, "Ts9hTd7c", 10, testConfig(t))
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{"Ts", "9h"}, raw["player_hand"])
	assert.Equal(t, "awaiting_player_action", raw["phase"])
	assert.EqualValues(t, 1, raw["v"])
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	r := startRound(t, "Ts9hTd7c", 10, testConfig(t))
	data, err := json.Marshal(r)
	require.NoError(t, err)

	mutate := func(fn func(map[string]any)) []byte {
		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		fn(raw)
		out, err := json.Marshal(raw)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"unknown version", mutate(func(m map[string]any) { m["v"] = 2 })},
		{"unknown phase", mutate(func(m map[string]any) { m["phase"] = "paused" })},
		{"complete without settlement", mutate(func(m map[string]any) { m["phase"] = "complete" })},
		{"zero bet", mutate(func(m map[string]any) { m["bet"] = 0 })},
		{"duplicate card", mutate(func(m map[string]any) { m["dealer_hand"] = []string{"Ts", "7c"} })},
		{"missing card", mutate(func(m map[string]any) {
			stack := m["deck"].([]any)
			m["deck"] = stack[1:]
		})},
		{"single card hand", mutate(func(m map[string]any) { m["player_hand"] = []string{"Ts"} })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Restore(tt.data, testConfig(t))
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}

	_, err = Restore([]byte(`{"player_hand":["Zz"]}`), testConfig(t))
	assert.Error(t, err)
}

func TestRestoreRejectsMismatchedSettlement(t *testing.T) {
	r := startRound(t, "Ts9hTd7c", 10, testConfig(t))
	require.NoError(t, r.Stand())
	r.settlement.Outcome = Lose

	data, err := json.Marshal(r)
	require.NoError(t, err)
	_, err = Restore(data, testConfig(t))
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestEventString(t *testing.T) {
	e := Event{Type: EventDealerHit, Party: PartyDealer, Cards: deck.MustParseCards("Kd"), Score: 26}
	assert.Equal(t, "dealer dealer_hit [K♦] (26)", e.String())
}
