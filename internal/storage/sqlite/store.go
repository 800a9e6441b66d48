// Package sqlite provides the SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
	"github.com/lox/blackjack/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const defaultLimit = 50

// Store persists users, rounds and records in SQLite
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	inMemory := path == ":memory:"
	if !inMemory {
		path = filepath.Clean(path)
	}
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
	if !inMemory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside an immediate transaction
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type recordRow struct {
	RoundID     string `db:"round_id"`
	UserID      string `db:"user_id"`
	Result      string `db:"result"`
	PlayerScore int    `db:"player_score"`
	DealerScore int    `db:"dealer_score"`
	Bet         int64  `db:"bet_amount"`
	Payout      int64  `db:"payout"`
	Blackjack   bool   `db:"blackjack"`
	Doubled     bool   `db:"doubled"`
	CreatedAt   int64  `db:"created_at"`
}

func (r recordRow) toRecord() storage.GameRecord {
	return storage.GameRecord{
		RoundID:     r.RoundID,
		UserID:      r.UserID,
		Outcome:     game.Outcome(r.Result),
		PlayerScore: r.PlayerScore,
		DealerScore: r.DealerScore,
		Bet:         r.Bet,
		Payout:      r.Payout,
		Blackjack:   r.Blackjack,
		Doubled:     r.Doubled,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

// Records returns a user's game records, newest first. An empty userID
// returns records for every user.
func (s *Store) Records(ctx context.Context, userID string, limit int) ([]storage.GameRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	query := `SELECT round_id, user_id, result, player_score, dealer_score, bet_amount, payout, blackjack, doubled, created_at
		FROM game_records`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list game records: %w", err)
	}
	out := make([]storage.GameRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

// Stats aggregates a user's game records
func (s *Store) Stats(ctx context.Context, userID string) (storage.Stats, error) {
	var row struct {
		Total       int   `db:"total_games"`
		Wins        int   `db:"wins"`
		Losses      int   `db:"losses"`
		Draws       int   `db:"draws"`
		TotalBet    int64 `db:"total_bet"`
		TotalPayout int64 `db:"total_payout"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT
			COUNT(*) AS total_games,
			COALESCE(SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(CASE WHEN result = 'lose' THEN 1 ELSE 0 END), 0) AS losses,
			COALESCE(SUM(CASE WHEN result = 'draw' THEN 1 ELSE 0 END), 0) AS draws,
			COALESCE(SUM(bet_amount), 0) AS total_bet,
			COALESCE(SUM(payout), 0) AS total_payout
		FROM game_records WHERE user_id = ?`, userID)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("stats for %s: %w", userID, err)
	}

	stats := storage.Stats{
		UserID:      userID,
		TotalGames:  row.Total,
		Wins:        row.Wins,
		Losses:      row.Losses,
		Draws:       row.Draws,
		TotalBet:    row.TotalBet,
		TotalPayout: row.TotalPayout,
	}
	stats.ComputeWinRate()
	return stats, nil
}

// Rankings returns the leaderboard by best single payout
func (s *Store) Rankings(ctx context.Context, limit int) ([]storage.Ranking, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var rows []struct {
		UserID     string `db:"user_id"`
		BestPayout int64  `db:"best_payout"`
		Games      int    `db:"games"`
		UpdatedAt  int64  `db:"updated_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT user_id, best_payout, games, updated_at
		FROM rankings ORDER BY best_payout DESC, updated_at ASC, user_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}
	out := make([]storage.Ranking, len(rows))
	for i, r := range rows {
		out[i] = storage.Ranking{
			Rank:       i + 1,
			UserID:     r.UserID,
			BestPayout: r.BestPayout,
			Games:      r.Games,
			UpdatedAt:  fromMillis(r.UpdatedAt),
		}
	}
	return out, nil
}

type ledgerRow struct {
	ID        int64  `db:"id"`
	UserID    string `db:"user_id"`
	Kind      string `db:"kind"`
	Amount    int64  `db:"amount"`
	Before    int64  `db:"before_amount"`
	After     int64  `db:"after_amount"`
	RoundID   string `db:"round_id"`
	CreatedAt int64  `db:"created_at"`
}

// Ledger returns a user's wallet movements, newest first
func (s *Store) Ledger(ctx context.Context, userID string, limit int) ([]storage.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, user_id, kind, amount, before_amount, after_amount, round_id, created_at
		FROM wallet_ledger WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	out := make([]storage.LedgerEntry, len(rows))
	for i, r := range rows {
		out[i] = storage.LedgerEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			Kind:      storage.LedgerKind(r.Kind),
			Amount:    r.Amount,
			Before:    r.Before,
			After:     r.After,
			RoundID:   r.RoundID,
			CreatedAt: fromMillis(r.CreatedAt),
		}
	}
	return out, nil
}

type roundRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Phase     string `db:"phase"`
	Bet       int64  `db:"bet"`
	State     []byte `db:"state"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r roundRow) toRecord() storage.RoundRecord {
	return storage.RoundRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Phase:     game.Phase(r.Phase),
		Bet:       r.Bet,
		State:     r.State,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

const roundColumns = `id, user_id, phase, bet, state, created_at, updated_at`

// StaleRounds lists unfinished rounds not touched since before
func (s *Store) StaleRounds(ctx context.Context, before time.Time, limit int) ([]storage.RoundRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var rows []roundRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+roundColumns+` FROM rounds
		WHERE phase != ? AND updated_at < ? ORDER BY updated_at ASC LIMIT ?`,
		string(game.Complete), toMillis(before), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale rounds: %w", err)
	}
	out := make([]storage.RoundRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
