// Package storage defines persistence for users, wallets, rounds and the
// game record ledger. Implementations live in the sqlite and memory
// subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/blackjack/internal/game"
)

var (
	// ErrNotFound is returned when a user or round does not exist
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds is returned when a debit would take a balance below zero
	ErrInsufficientFunds = fmt.Errorf("storage: %w", game.ErrInsufficientFunds)
	// ErrAlreadySettled is returned when a game record already exists for a round
	ErrAlreadySettled = fmt.Errorf("storage: %w", game.ErrAlreadySettled)
	// ErrActiveRound is returned when saving a second unfinished round for a user
	ErrActiveRound = errors.New("user already has an active round")
)

// Store is a transactional store. Reads outside WithTx see committed data.
type Store interface {
	// WithTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn must only use the Tx it is
	// given. Implementations may hold a store-wide lock or their only
	// connection until fn returns, so calling Store methods from inside fn
	// can deadlock.
	WithTx(ctx context.Context, fn func(Tx) error) error

	Records(ctx context.Context, userID string, limit int) ([]GameRecord, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	Rankings(ctx context.Context, limit int) ([]Ranking, error)
	Ledger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
	// StaleRounds lists unfinished rounds last updated before the cutoff,
	// oldest first.
	StaleRounds(ctx context.Context, before time.Time, limit int) ([]RoundRecord, error)
	Close() error
}

// Tx is the set of operations available inside a transaction
type Tx interface {
	// EnsureUser returns the user, creating it with startBalance if missing
	EnsureUser(ctx context.Context, userID string, startBalance int64, at time.Time) (User, error)
	Balance(ctx context.Context, userID string) (int64, error)
	// Debit atomically subtracts m.Amount, failing with ErrInsufficientFunds
	// rather than going negative, and appends a ledger entry.
	Debit(ctx context.Context, m Movement) (LedgerEntry, error)
	// Credit adds m.Amount and appends a ledger entry
	Credit(ctx context.Context, m Movement) (LedgerEntry, error)

	ActiveRound(ctx context.Context, userID string) (RoundRecord, error)
	LoadRound(ctx context.Context, roundID string) (RoundRecord, error)
	SaveRound(ctx context.Context, rec RoundRecord) error

	AppendGameRecord(ctx context.Context, rec GameRecord) error
	UpdateRanking(ctx context.Context, userID string, payout int64, at time.Time) error
}

// User is a player with a chip balance
type User struct {
	ID        string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerKind is the reason for a balance movement
type LedgerKind string

const (
	LedgerBet        LedgerKind = "bet"
	LedgerDoubleDown LedgerKind = "double_down"
	LedgerPayout     LedgerKind = "payout"
)

// Movement is a requested balance change
type Movement struct {
	UserID  string
	Amount  int64
	Kind    LedgerKind
	RoundID string
	At      time.Time
}

// LedgerEntry is one append-only wallet movement. Amount is never negative;
// the direction follows from Before and After.
type LedgerEntry struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      LedgerKind `json:"kind"`
	Amount    int64      `json:"amount"`
	Before    int64      `json:"before"`
	After     int64      `json:"after"`
	RoundID   string     `json:"round_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// RoundRecord is a persisted round. State holds the round's own encoding.
type RoundRecord struct {
	ID        string
	UserID    string
	Phase     game.Phase
	Bet       int64
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoundRecordFor captures the current state of r
func RoundRecordFor(r *game.Round) (RoundRecord, error) {
	state, err := r.MarshalJSON()
	if err != nil {
		return RoundRecord{}, fmt.Errorf("encoding round %s: %w", r.ID(), err)
	}
	return RoundRecord{
		ID:        r.ID(),
		UserID:    r.UserID(),
		Phase:     r.Phase(),
		Bet:       r.Bet(),
		State:     state,
		CreatedAt: r.CreatedAt(),
		UpdatedAt: r.UpdatedAt(),
	}, nil
}

// GameRecord is the append-only result of a settled round
type GameRecord struct {
	RoundID     string       `json:"round_id"`
	UserID      string       `json:"user_id"`
	Outcome     game.Outcome `json:"result"`
	PlayerScore int          `json:"player_score"`
	DealerScore int          `json:"dealer_score"`
	Bet         int64        `json:"bet_amount"`
	Payout      int64        `json:"payout"`
	Blackjack   bool         `json:"blackjack"`
	Doubled     bool         `json:"doubled"`
	CreatedAt   time.Time    `json:"created_at"`
}

// GameRecordFromSettlement converts a settlement into its ledger record
func GameRecordFromSettlement(s game.Settlement) GameRecord {
	return GameRecord{
		RoundID:     s.RoundID,
		UserID:      s.UserID,
		Outcome:     s.Outcome,
		PlayerScore: s.PlayerScore,
		DealerScore: s.DealerScore,
		Bet:         s.Bet,
		Payout:      s.Payout,
		Blackjack:   s.Blackjack,
		Doubled:     s.Doubled,
		CreatedAt:   s.SettledAt,
	}
}

// Stats summarises a user's game records
type Stats struct {
	UserID      string  `json:"user_id"`
	TotalGames  int     `json:"total_games"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	WinRate     float64 `json:"win_rate"`
	TotalBet    int64   `json:"total_bet"`
	TotalPayout int64   `json:"total_payout"`
}

// Net is the user's overall profit or loss
func (s Stats) Net() int64 {
	return s.TotalPayout - s.TotalBet
}

// ComputeWinRate fills WinRate as wins over total games, in [0,1]
func (s *Stats) ComputeWinRate() {
	if s.TotalGames == 0 {
		s.WinRate = 0
		return
	}
	s.WinRate = float64(s.Wins) / float64(s.TotalGames)
}

// Ranking is a leaderboard row ordered by best single-round payout
type Ranking struct {
	Rank       int       `json:"rank"`
	UserID     string    `json:"user_id"`
	BestPayout int64     `json:"best_payout"`
	Games      int       `json:"games"`
	UpdatedAt  time.Time `json:"updated_at"`
}
