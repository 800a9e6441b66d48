package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/evaluator"
)

// schemaVersion is bumped whenever the persisted layout changes
const schemaVersion = 1

// roundState is the persisted form of a Round. Scores are not stored; they
// are recomputed from the hands on restore.
type roundState struct {
	Version    int         `json:"v"`
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Deck       []deck.Card `json:"deck"`
	PlayerHand []deck.Card `json:"player_hand"`
	DealerHand []deck.Card `json:"dealer_hand"`
	Bet        int64       `json:"bet"`
	Doubled    bool        `json:"doubled,omitempty"`
	Phase      Phase       `json:"phase"`
	Settlement *Settlement `json:"settlement,omitempty"`
	History    []Event     `json:"history,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// MarshalJSON encodes the full round, including the undealt deck, for storage
func (r *Round) MarshalJSON() ([]byte, error) {
	return json.Marshal(roundState{
		Version:    schemaVersion,
		ID:         r.id,
		UserID:     r.userID,
		Deck:       r.deck.Stack(),
		PlayerHand: r.player.Cards(),
		DealerHand: r.dealer.Cards(),
		Bet:        r.bet,
		Doubled:    r.doubled,
		Phase:      r.phase,
		Settlement: r.settlement,
		History:    r.history,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
	})
}

// UnmarshalJSON decodes and validates a stored round. Table rules are not
// part of the stored state; the round is given DefaultConfig. Use Restore
// to supply different rules.
func (r *Round) UnmarshalJSON(data []byte) error {
	restored, err := Restore(data, DefaultConfig())
	if err != nil {
		return err
	}
	*r = *restored
	return nil
}

// Restore decodes a round stored with MarshalJSON and validates it
func Restore(data []byte, cfg Config) (*Round, error) {
	var st roundState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding round: %w", err)
	}
	if err := st.validate(); err != nil {
		return nil, fmt.Errorf("round %s: %w", st.ID, err)
	}

	cfg = cfg.withDefaults()
	r := &Round{
		id:         st.ID,
		userID:     st.UserID,
		deck:       deck.FromStack(st.Deck),
		player:     evaluator.NewHand(st.PlayerHand...),
		dealer:     evaluator.NewHand(st.DealerHand...),
		bet:        st.Bet,
		doubled:    st.Doubled,
		phase:      st.Phase,
		settlement: st.Settlement,
		history:    st.History,
		createdAt:  st.CreatedAt,
		updatedAt:  st.UpdatedAt,
		policy:     cfg.Policy,
		reactOnHit: cfg.DealerReactsOnHit,
		clock:      cfg.Clock,
	}
	r.rescore()
	return r, nil
}

func (st roundState) validate() error {
	if st.Version != schemaVersion {
		return fmt.Errorf("unsupported schema version %d: %w", st.Version, ErrCorruptState)
	}
	if !st.Phase.Valid() {
		return fmt.Errorf("phase %q: %w", st.Phase, ErrCorruptState)
	}
	if st.Bet <= 0 {
		return fmt.Errorf("bet %d: %w", st.Bet, ErrCorruptState)
	}
	if len(st.PlayerHand) < 2 || len(st.DealerHand) < 2 {
		return fmt.Errorf("hands not dealt: %w", ErrCorruptState)
	}
	if (st.Phase == Complete) != (st.Settlement != nil) {
		return fmt.Errorf("phase %s with settlement=%t: %w", st.Phase, st.Settlement != nil, ErrCorruptState)
	}

	seen := make(map[deck.Card]bool, deck.Size)
	for _, group := range [][]deck.Card{st.Deck, st.PlayerHand, st.DealerHand} {
		for _, c := range group {
			if !c.Rank.Valid() {
				return fmt.Errorf("card %v: %w", c, ErrCorruptState)
			}
			if seen[c] {
				return fmt.Errorf("duplicate card %s: %w", c.Code(), ErrCorruptState)
			}
			seen[c] = true
		}
	}
	if len(seen) != deck.Size {
		return fmt.Errorf("%d cards accounted for: %w", len(seen), ErrCorruptState)
	}

	if st.Settlement != nil {
		want := DetermineResult(evaluator.Score(st.PlayerHand...), evaluator.Score(st.DealerHand...))
		if st.Settlement.Outcome != want {
			return fmt.Errorf("settled as %s, hands say %s: %w", st.Settlement.Outcome, want, ErrCorruptState)
		}
	}
	return nil
}
