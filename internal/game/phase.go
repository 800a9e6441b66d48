package game

import "fmt"

// Phase is the lifecycle position of a round
type Phase string

const (
	AwaitingPlayerAction Phase = "awaiting_player_action"
	Resolving            Phase = "resolving"
	Complete             Phase = "complete"
)

func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	switch p {
	case AwaitingPlayerAction, Resolving, Complete:
		return true
	}
	return false
}

// ParsePhase converts a stored phase name back into a Phase
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Outcome is the result of a settled round from the player's side
type Outcome string

const (
	Win  Outcome = "win"
	Lose Outcome = "lose"
	Draw Outcome = "draw"
)

func (o Outcome) String() string {
	return string(o)
}

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	switch o {
	case Win, Lose, Draw:
		return true
	}
	return false
}
