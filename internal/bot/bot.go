// Package bot contains automated players used by the simulator and the
// terminal client's hint line. Bots only see what a player sees: their own
// cards, the dealer's up-card, the bet and the balance.
package bot

import (
	"fmt"
	rand "math/rand/v2"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/evaluator"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/randutil"
)

// Action is a player move
type Action int

const (
	Hit Action = iota
	Stand
	DoubleDown
)

func (a Action) String() string {
	switch a {
	case Hit:
		return "hit"
	case Stand:
		return "stand"
	case DoubleDown:
		return "double_down"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// View is the table as seen by the player
type View struct {
	Player   evaluator.Hand
	DealerUp deck.Card
	Bet      int64
	Balance  int64
}

// CanDouble reports whether doubling is affordable. Bots only double on
// their first two cards.
func (v View) CanDouble() bool {
	return len(v.Player) == 2 && v.Balance >= v.Bet
}

// ViewFromSnapshot builds a view from a round snapshot
func ViewFromSnapshot(s game.Snapshot) (View, error) {
	if len(s.DealerHand) == 0 {
		return View{}, fmt.Errorf("snapshot %s has no dealer cards", s.RoundID)
	}
	up, ok := s.DealerHand[0].Card()
	if !ok {
		return View{}, fmt.Errorf("snapshot %s: dealer up-card is hidden", s.RoundID)
	}

	cards := make([]deck.Card, 0, len(s.PlayerHand))
	for _, cv := range s.PlayerHand {
		c, ok := cv.Card()
		if !ok {
			return View{}, fmt.Errorf("snapshot %s: unreadable player card %q", s.RoundID, cv.Code)
		}
		cards = append(cards, c)
	}

	return View{
		Player:   evaluator.NewHand(cards...),
		DealerUp: up,
		Bet:      s.BetAmount,
		Balance:  s.Balance,
	}, nil
}

// Decision is a bot's chosen action with a short reason
type Decision struct {
	Action    Action
	Reasoning string
}

// Bot picks an action for the current view
type Bot interface {
	Decide(v View) Decision
	Name() string
}

type factory func(rng *rand.Rand, logger *log.Logger) Bot

var registry = map[string]factory{
	"basic":    func(_ *rand.Rand, l *log.Logger) Bot { return NewBasicBot(l) },
	"dealer":   func(_ *rand.Rand, l *log.Logger) Bot { return NewDealerBot(l) },
	"cautious": func(_ *rand.Rand, l *log.Logger) Bot { return NewCautiousBot(l) },
	"random":   func(r *rand.Rand, l *log.Logger) Bot { return NewRandBot(r, l) },
}

// Names lists the registered strategies
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the bot registered under name. rng is only used by
// strategies that need randomness.
func New(name string, rng *rand.Rand, logger *log.Logger) (Bot, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	if logger == nil {
		logger = log.Default()
	}
	if rng == nil {
		rng = randutil.New(randutil.NewSeed())
	}
	return f(rng, logger.WithPrefix("bot")), nil
}

// upValue is the dealer up-card counted the way strategy charts count it:
// faces are 10 and an ace is 11
func upValue(c deck.Card) int {
	return evaluator.Score(c)
}
