package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/dealer"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/metrics"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/storage"
)

// Action names used in logs and metrics
const (
	ActionStart      = "start"
	ActionHit        = "hit"
	ActionStand      = "stand"
	ActionDoubleDown = "double_down"
)

// GameService owns round state. Every operation runs in a single storage
// transaction and holds a non-blocking lock on the round (or, for starts, the
// user) so concurrent requests are rejected rather than interleaved.
type GameService struct {
	store  storage.Store
	table  TableConfig
	rules  game.Config
	clock  quartz.Clock
	logger *log.Logger

	newDeck func() *deck.Deck
	newID   func() string

	rounds *keyedLocks
	users  *keyedLocks
}

// Option customises a GameService
type Option func(*GameService)

// WithClock sets the clock used for timestamps
func WithClock(clock quartz.Clock) Option {
	return func(gs *GameService) { gs.clock = clock }
}

// WithDeckFactory replaces the shuffled deck source, mostly for tests
func WithDeckFactory(fn func() *deck.Deck) Option {
	return func(gs *GameService) { gs.newDeck = fn }
}

// WithIDGenerator replaces the round id source
func WithIDGenerator(fn func() string) Option {
	return func(gs *GameService) { gs.newID = fn }
}

// WithSeed makes shuffles reproducible. Zero picks a random seed.
func WithSeed(seed int64) Option {
	return func(gs *GameService) { gs.newDeck = seededDecks(seed) }
}

// WithPolicy overrides the dealer policy named in the table config
func WithPolicy(p dealer.Policy) Option {
	return func(gs *GameService) { gs.rules.Policy = p }
}

// NewGameService creates a game service backed by store
func NewGameService(store storage.Store, table TableConfig, logger *log.Logger, opts ...Option) (*GameService, error) {
	if logger == nil {
		logger = log.Default()
	}
	table = table.withDefaults()
	if err := table.Validate(); err != nil {
		return nil, err
	}

	gs := &GameService{
		store:  store,
		table:  table,
		clock:  quartz.NewReal(),
		logger: logger.WithPrefix("game_service"),
		newID:  roundid.New,
		rounds: newKeyedLocks(),
		users:  newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(gs)
	}
	if gs.newDeck == nil {
		gs.newDeck = seededDecks(0)
	}
	if gs.rules.Policy == nil {
		policy, err := dealer.New(table.DealerPolicy, logger, table.RiskThreshold)
		if err != nil {
			return nil, err
		}
		gs.rules.Policy = policy
	}
	gs.rules.DealerReactsOnHit = table.ReactsOnHit()
	gs.rules.Clock = gs.clock

	gs.logger.Info("Game service ready",
		"policy", gs.rules.Policy.Name(),
		"dealerReactsOnHit", gs.rules.DealerReactsOnHit,
		"startBalance", table.StartBalance)
	return gs, nil
}

func seededDecks(seed int64) func() *deck.Deck {
	if seed == 0 {
		seed = randutil.NewSeed()
	}
	var mu sync.Mutex
	rng := randutil.New(seed)
	return func() *deck.Deck {
		mu.Lock()
		defer mu.Unlock()
		return deck.NewShuffledDeck(rng)
	}
}

// Table returns the table configuration in use
func (gs *GameService) Table() TableConfig {
	return gs.table
}

// Clock returns the service clock
func (gs *GameService) Clock() quartz.Clock {
	return gs.clock
}

// Login returns the user's balance, creating the user on first sight
func (gs *GameService) Login(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUnauthenticated
	}
	var balance int64
	err := gs.store.WithTx(ctx, func(tx storage.Tx) error {
		u, err := tx.EnsureUser(ctx, userID, gs.table.StartBalance, gs.clock.Now())
		if err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	return balance, err
}

// Balance returns the user's current balance
func (gs *GameService) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUnauthenticated
	}
	var balance int64
	err := gs.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		balance, err = tx.Balance(ctx, userID)
		return err
	})
	return balance, err
}

// StartRound escrows the bet and deals a new round
func (gs *GameService) StartRound(ctx context.Context, userID string, bet int64) (snap game.Snapshot, err error) {
	started := time.Now()
	defer func() { metrics.RecordAction(ActionStart, resultLabel(err), started) }()

	if userID == "" {
		return game.Snapshot{}, ErrUnauthenticated
	}
	if bet < gs.table.MinBet || bet > gs.table.MaxBet {
		return game.Snapshot{}, fmt.Errorf("bet %d outside table limits %d-%d: %w",
			bet, gs.table.MinBet, gs.table.MaxBet, game.ErrInvalidBet)
	}

	unlock, ok := gs.users.TryLock(userID)
	if !ok {
		return game.Snapshot{}, fmt.Errorf("starting round for %s: %w", userID, ErrRoundBusy)
	}
	defer unlock()

	var round *game.Round
	err = gs.store.WithTx(ctx, func(tx storage.Tx) error {
		now := gs.clock.Now()
		user, err := tx.EnsureUser(ctx, userID, gs.table.StartBalance, now)
		if err != nil {
			return err
		}

		active, err := tx.ActiveRound(ctx, userID)
		switch {
		case err == nil:
			return fmt.Errorf("round %s: %w", active.ID, ErrRoundInProgress)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		round, err = game.Start(game.StartParams{
			ID:      gs.newID(),
			UserID:  userID,
			Bet:     bet,
			Balance: user.Balance,
			Deck:    gs.newDeck(),
		}, gs.rules)
		if err != nil {
			return err
		}

		if _, err := tx.Debit(ctx, storage.Movement{
			UserID:  userID,
			Amount:  bet,
			Kind:    storage.LedgerBet,
			RoundID: round.ID(),
			At:      now,
		}); err != nil {
			return err
		}

		balance, err := gs.persist(ctx, tx, round)
		if err != nil {
			return err
		}
		snap = round.Snapshot(balance)
		return nil
	})
	if err != nil {
		return game.Snapshot{}, err
	}

	metrics.RecordWager(bet)
	gs.observeSettlement(round)
	gs.logger.Debug("Round started",
		"round", round.ID(),
		"user", userID,
		"bet", bet,
		"player", round.PlayerHand().String(),
		"phase", round.Phase())
	return snap, nil
}

// Hit draws a card for the player
func (gs *GameService) Hit(ctx context.Context, userID, roundID string) (game.Snapshot, error) {
	return gs.act(ctx, ActionHit, userID, roundID, func(r *game.Round, _ int64) error {
		return r.Hit()
	})
}

// Stand ends the player's turn and plays the dealer out
func (gs *GameService) Stand(ctx context.Context, userID, roundID string) (game.Snapshot, error) {
	return gs.act(ctx, ActionStand, userID, roundID, func(r *game.Round, _ int64) error {
		return r.Stand()
	})
}

// DoubleDown doubles the bet, draws one card and stands
func (gs *GameService) DoubleDown(ctx context.Context, userID, roundID string) (game.Snapshot, error) {
	return gs.act(ctx, ActionDoubleDown, userID, roundID, func(r *game.Round, balance int64) error {
		return r.DoubleDown(balance)
	})
}

type roundAction func(r *game.Round, balance int64) error

func (gs *GameService) act(ctx context.Context, action, userID, roundID string, fn roundAction) (snap game.Snapshot, err error) {
	started := time.Now()
	defer func() { metrics.RecordAction(action, resultLabel(err), started) }()

	if userID == "" {
		return game.Snapshot{}, ErrUnauthenticated
	}

	unlock, ok := gs.rounds.TryLock(roundID)
	if !ok {
		return game.Snapshot{}, fmt.Errorf("%s on round %s: %w", action, roundID, ErrRoundBusy)
	}
	defer unlock()

	var round *game.Round
	var extra int64
	err = gs.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		round, err = gs.load(ctx, tx, userID, roundID)
		if err != nil {
			return err
		}

		balance, err := tx.Balance(ctx, userID)
		if err != nil {
			return err
		}

		before := round.Bet()
		if err := fn(round, balance); err != nil {
			return err
		}

		if extra = round.Bet() - before; extra > 0 {
			if _, err := tx.Debit(ctx, storage.Movement{
				UserID:  userID,
				Amount:  extra,
				Kind:    storage.LedgerDoubleDown,
				RoundID: roundID,
				At:      gs.clock.Now(),
			}); err != nil {
				return err
			}
		}

		balance, err = gs.persist(ctx, tx, round)
		if err != nil {
			return err
		}
		snap = round.Snapshot(balance)
		return nil
	})
	if err != nil {
		gs.logger.Debug("Action rejected", "action", action, "round", roundID, "user", userID, "error", err)
		return game.Snapshot{}, err
	}

	if extra > 0 {
		metrics.RecordWager(extra)
	}
	gs.observeSettlement(round)
	gs.logger.Debug("Action applied",
		"action", action,
		"round", roundID,
		"user", userID,
		"playerScore", round.PlayerScore(),
		"phase", round.Phase())
	return snap, nil
}

// Round returns the current snapshot of a round owned by userID
func (gs *GameService) Round(ctx context.Context, userID, roundID string) (game.Snapshot, error) {
	if userID == "" {
		return game.Snapshot{}, ErrUnauthenticated
	}
	var snap game.Snapshot
	err := gs.store.WithTx(ctx, func(tx storage.Tx) error {
		round, err := gs.load(ctx, tx, userID, roundID)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, userID)
		if err != nil {
			return err
		}
		snap = round.Snapshot(balance)
		return nil
	})
	return snap, err
}

// ActiveRound returns the user's unfinished round, if any
func (gs *GameService) ActiveRound(ctx context.Context, userID string) (game.Snapshot, bool, error) {
	if userID == "" {
		return game.Snapshot{}, false, ErrUnauthenticated
	}
	var snap game.Snapshot
	var found bool
	err := gs.store.WithTx(ctx, func(tx storage.Tx) error {
		rec, err := tx.ActiveRound(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		round, err := game.Restore(rec.State, gs.rules)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, userID)
		if err != nil {
			return err
		}
		snap, found = round.Snapshot(balance), true
		return nil
	})
	return snap, found, err
}

// Stats summarises a user's finished rounds
func (gs *GameService) Stats(ctx context.Context, userID string) (storage.Stats, error) {
	if userID == "" {
		return storage.Stats{}, ErrUnauthenticated
	}
	return gs.store.Stats(ctx, userID)
}

// Records lists a user's most recent finished rounds
func (gs *GameService) Records(ctx context.Context, userID string, limit int) ([]storage.GameRecord, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return gs.store.Records(ctx, userID, limit)
}

// Rankings returns the leaderboard
func (gs *GameService) Rankings(ctx context.Context, limit int) ([]storage.Ranking, error) {
	return gs.store.Rankings(ctx, limit)
}

// Ledger lists a user's wallet movements, newest first
func (gs *GameService) Ledger(ctx context.Context, userID string, limit int) ([]storage.LedgerEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return gs.store.Ledger(ctx, userID, limit)
}

func (gs *GameService) load(ctx context.Context, tx storage.Tx, userID, roundID string) (*game.Round, error) {
	rec, err := tx.LoadRound(ctx, roundID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", game.ErrRoundNotActive, err)
	}
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("round %s: %w", roundID, ErrForbidden)
	}
	return game.Restore(rec.State, gs.rules)
}

// persist saves the round and, once it is complete, pays out and appends the
// game record. It returns the balance after any payout.
func (gs *GameService) persist(ctx context.Context, tx storage.Tx, r *game.Round) (int64, error) {
	rec, err := storage.RoundRecordFor(r)
	if err != nil {
		return 0, err
	}
	if err := tx.SaveRound(ctx, rec); err != nil {
		return 0, err
	}

	s, settled := r.Settlement()
	if !settled {
		return tx.Balance(ctx, r.UserID())
	}

	if s.Payout > 0 {
		if _, err := tx.Credit(ctx, storage.Movement{
			UserID:  s.UserID,
			Amount:  s.Payout,
			Kind:    storage.LedgerPayout,
			RoundID: s.RoundID,
			At:      s.SettledAt,
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.AppendGameRecord(ctx, storage.GameRecordFromSettlement(s)); err != nil {
		return 0, err
	}
	if s.Outcome != game.Draw {
		if err := tx.UpdateRanking(ctx, s.UserID, s.Payout, s.SettledAt); err != nil {
			return 0, err
		}
	}
	return tx.Balance(ctx, r.UserID())
}

func (gs *GameService) observeSettlement(r *game.Round) {
	s, ok := r.Settlement()
	if !ok {
		return
	}
	metrics.RecordSettlement(string(s.Outcome), s.Blackjack, s.Payout)
	gs.logger.Info("Round settled",
		"round", s.RoundID,
		"user", s.UserID,
		"result", s.Outcome,
		"player", s.PlayerScore,
		"dealer", s.DealerScore,
		"bet", s.Bet,
		"payout", s.Payout)
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	code, _ := ErrorCode(err)
	return code
}

