package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/blackjack/internal/deck"
)

// EventType identifies an entry in a round's history
type EventType string

const (
	EventDeal        EventType = "deal"
	EventPlayerHit   EventType = "player_hit"
	EventDoubleDown  EventType = "double_down"
	EventStand       EventType = "stand"
	EventDealerHit   EventType = "dealer_hit"
	EventDealerStand EventType = "dealer_stand"
	EventDealerBust  EventType = "dealer_bust"
	EventSettle      EventType = "settle"
)

func (et EventType) String() string {
	return string(et)
}

// Party is who an event belongs to
type Party string

const (
	PartyPlayer Party = "player"
	PartyDealer Party = "dealer"
)

// Event is one step in a round's history. Cards holds the cards drawn by the
// step, if any, and Score the party's score after it.
type Event struct {
	Type  EventType   `json:"type"`
	Party Party       `json:"party,omitempty"`
	Cards []deck.Card `json:"cards,omitempty"`
	Score int         `json:"score"`
	At    time.Time   `json:"at"`
}

// String renders the event for logs and the history command
func (e Event) String() string {
	var b strings.Builder
	if e.Party != "" {
		fmt.Fprintf(&b, "%s ", e.Party)
	}
	b.WriteString(e.Type.String())
	if len(e.Cards) > 0 {
		codes := make([]string, len(e.Cards))
		for i, c := range e.Cards {
			codes[i] = c.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(codes, " "))
	}
	fmt.Fprintf(&b, " (%d)", e.Score)
	return b.String()
}

func (r *Round) record(t EventType, party Party, score int, cards ...deck.Card) {
	var drawn []deck.Card
	if len(cards) > 0 {
		drawn = append(drawn, cards...)
	}
	r.history = append(r.history, Event{
		Type:  t,
		Party: party,
		Cards: drawn,
		Score: score,
		At:    r.clock.Now().UTC(),
	})
}

// History returns a copy of the round's events in order
func (r *Round) History() []Event {
	out := make([]Event, len(r.history))
	copy(out, r.history)
	return out
}

// HasEvent reports whether any event of type t was recorded
func (r *Round) HasEvent(t EventType) bool {
	for _, e := range r.history {
		if e.Type == t {
			return true
		}
	}
	return false
}
