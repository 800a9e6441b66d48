package game

import (
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/dealer"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/evaluator"
	"github.com/lox/blackjack/internal/randutil"
)

// Config holds the table rules a round is played under
type Config struct {
	Policy dealer.Policy
	// DealerReactsOnHit lets the dealer take one draw decision after each
	// player hit, rather than only after the player stands.
	DealerReactsOnHit bool
	Clock             quartz.Clock
}

// DefaultConfig is the house policy with dealer reactions enabled
func DefaultConfig() Config {
	return Config{
		Policy:            dealer.NewHousePolicy(nil, dealer.DefaultRiskThreshold),
		DealerReactsOnHit: true,
		Clock:             quartz.NewReal(),
	}
}

func (c Config) withDefaults() Config {
	if c.Policy == nil {
		c.Policy = dealer.NewHousePolicy(nil, dealer.DefaultRiskThreshold)
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	return c
}

// StartParams describes a new round. Deck is optional; when nil a fresh
// deck is shuffled with RNG, or with a crypto-seeded generator if RNG is nil.
type StartParams struct {
	ID      string
	UserID  string
	Bet     int64
	Balance int64
	Deck    *deck.Deck
	RNG     *rand.Rand
}

// Round is the state of one blackjack round. It is not safe for concurrent
// use; callers serialize access per round.
type Round struct {
	id     string
	userID string

	deck   *deck.Deck
	player evaluator.Hand
	dealer evaluator.Hand

	// cached scores, recomputed after every card
	playerScore int
	dealerScore int

	bet     int64
	doubled bool
	phase   Phase

	settlement *Settlement
	history    []Event

	createdAt time.Time
	updatedAt time.Time

	policy     dealer.Policy
	reactOnHit bool
	clock      quartz.Clock
}

// Start validates the bet, deals two cards each and returns the new round.
// A player blackjack is resolved and settled before Start returns.
func Start(p StartParams, cfg Config) (*Round, error) {
	if p.Bet <= 0 {
		return nil, fmt.Errorf("bet %d: %w", p.Bet, ErrInvalidBet)
	}
	if p.Bet > p.Balance {
		return nil, fmt.Errorf("bet %d exceeds balance %d: %w", p.Bet, p.Balance, ErrInsufficientFunds)
	}

	d := p.Deck
	if d == nil {
		rng := p.RNG
		if rng == nil {
			rng = randutil.New(randutil.NewSeed())
		}
		d = deck.NewShuffledDeck(rng)
	}
	if d.Remaining() < 4 {
		return nil, fmt.Errorf("dealing round: %w", deck.ErrEmptyDeck)
	}

	cfg = cfg.withDefaults()
	now := cfg.Clock.Now().UTC()
	r := &Round{
		id:         p.ID,
		userID:     p.UserID,
		deck:       d,
		bet:        p.Bet,
		phase:      AwaitingPlayerAction,
		createdAt:  now,
		updatedAt:  now,
		policy:     cfg.Policy,
		reactOnHit: cfg.DealerReactsOnHit,
		clock:      cfg.Clock,
	}

	playerCards, _ := d.DealInitial(2)
	dealerCards, _ := d.DealInitial(2)
	r.player = evaluator.NewHand(playerCards...)
	r.dealer = evaluator.NewHand(dealerCards...)
	r.rescore()
	r.record(EventDeal, PartyPlayer, r.playerScore, playerCards...)
	r.record(EventDeal, PartyDealer, r.dealerScore, dealerCards...)

	if r.player.IsBlackjack() {
		if err := r.resolve(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Hit draws one card for the player. A bust settles the round as a loss
// without a dealer turn.
func (r *Round) Hit() error {
	if r.phase != AwaitingPlayerAction {
		return fmt.Errorf("hit in phase %s: %w", r.phase, ErrRoundNotActive)
	}
	card, err := r.deck.Draw()
	if err != nil {
		return fmt.Errorf("hit: %w", err)
	}

	r.player = r.player.Add(card)
	r.rescore()
	r.record(EventPlayerHit, PartyPlayer, r.playerScore, card)

	if r.player.IsBust() {
		r.phase = Resolving
		return r.settle()
	}

	if r.reactOnHit {
		hand, drawn := dealer.React(r.deck, r.dealer, r.playerScore, r.policy)
		if drawn != nil {
			r.dealer = hand
			r.rescore()
			r.record(EventDealerHit, PartyDealer, r.dealerScore, *drawn)
		}
	}
	r.touch()
	return nil
}

// DoubleDown doubles the bet, draws exactly one card and resolves the round.
// balance is what the player has left after the original bet was escrowed.
func (r *Round) DoubleDown(balance int64) error {
	if r.phase != AwaitingPlayerAction {
		return fmt.Errorf("double down in phase %s: %w", r.phase, ErrRoundNotActive)
	}
	if balance < r.bet {
		return fmt.Errorf("double down needs %d, balance %d: %w", r.bet, balance, ErrInsufficientFunds)
	}
	card, err := r.deck.Draw()
	if err != nil {
		return fmt.Errorf("double down: %w", err)
	}

	r.bet *= 2
	r.doubled = true
	r.player = r.player.Add(card)
	r.rescore()
	r.record(EventDoubleDown, PartyPlayer, r.playerScore, card)

	if r.player.IsBust() {
		r.phase = Resolving
		return r.settle()
	}
	return r.resolve()
}

// Stand ends the player's turn and plays out the dealer
func (r *Round) Stand() error {
	if r.phase != AwaitingPlayerAction {
		return fmt.Errorf("stand in phase %s: %w", r.phase, ErrRoundNotActive)
	}
	r.record(EventStand, PartyPlayer, r.playerScore)
	return r.resolve()
}

// resolve runs the dealer turn and settles
func (r *Round) resolve() error {
	r.phase = Resolving

	turn := dealer.PlayTurn(r.deck, r.dealer, r.playerScore, r.policy)
	r.dealer = turn.Hand
	r.rescore()

	running := evaluator.NewHand(r.dealer[:len(r.dealer)-len(turn.Drawn)]...)
	for _, c := range turn.Drawn {
		running = running.Add(c)
		r.record(EventDealerHit, PartyDealer, running.Score(), c)
	}
	if turn.Busted() {
		r.record(EventDealerBust, PartyDealer, r.dealerScore)
	} else {
		r.record(EventDealerStand, PartyDealer, r.dealerScore)
	}

	return r.settle()
}

// settle records the settlement and completes the round. It runs once.
func (r *Round) settle() error {
	if r.settlement != nil || r.phase == Complete {
		return fmt.Errorf("round %s: %w", r.id, ErrAlreadySettled)
	}

	outcome := DetermineResult(r.playerScore, r.dealerScore)
	blackjack := r.player.IsBlackjack()
	now := r.clock.Now().UTC()

	r.settlement = &Settlement{
		RoundID:     r.id,
		UserID:      r.userID,
		Outcome:     outcome,
		Bet:         r.bet,
		Payout:      Payout(outcome, r.bet, blackjack),
		PlayerScore: r.playerScore,
		DealerScore: r.dealerScore,
		Blackjack:   blackjack,
		Doubled:     r.doubled,
		SettledAt:   now,
	}
	r.phase = Complete
	r.record(EventSettle, "", r.playerScore)
	r.updatedAt = now
	return nil
}

func (r *Round) rescore() {
	r.playerScore = r.player.Score()
	r.dealerScore = r.dealer.Score()
}

func (r *Round) touch() {
	r.updatedAt = r.clock.Now().UTC()
}

func (r *Round) ID() string { return r.id }
func (r *Round) UserID() string { return r.userID }
func (r *Round) Phase() Phase { return r.phase }
func (r *Round) Bet() int64 { return r.bet }
func (r *Round) Doubled() bool { return r.doubled }
func (r *Round) PlayerScore() int { return r.playerScore }
func (r *Round) DealerScore() int { return r.dealerScore }
func (r *Round) CreatedAt() time.Time { return r.createdAt }
func (r *Round) UpdatedAt() time.Time { return r.updatedAt }
func (r *Round) CardsRemaining() int { return r.deck.Remaining() }
func (r *Round) IsComplete() bool { return r.phase == Complete }

// PlayerHand returns a copy of the player's cards
func (r *Round) PlayerHand() evaluator.Hand {
	return evaluator.NewHand(r.player...)
}

// DealerHand returns the dealer's full hand, including the hole card
func (r *Round) DealerHand() evaluator.Hand {
	return evaluator.NewHand(r.dealer...)
}

// Settlement returns the round's result once it is complete
func (r *Round) Settlement() (Settlement, bool) {
	if r.settlement == nil {
		return Settlement{}, false
	}
	return *r.settlement, true
}
