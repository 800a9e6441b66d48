package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
)

type txStore struct {
	tx *sqlx.Tx
}

func (t *txStore) EnsureUser(ctx context.Context, userID string, startBalance int64, at time.Time) (storage.User, error) {
	if userID == "" {
		return storage.User{}, fmt.Errorf("user id is required")
	}
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO users (id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, startBalance, toMillis(at), toMillis(at)); err != nil {
		return storage.User{}, fmt.Errorf("ensure user %s: %w", userID, err)
	}

	var row struct {
		ID        string `db:"id"`
		Balance   int64  `db:"balance"`
		CreatedAt int64  `db:"created_at"`
		UpdatedAt int64  `db:"updated_at"`
	}
	if err := t.tx.GetContext(ctx, &row, `SELECT id, balance, created_at, updated_at FROM users WHERE id = ?`, userID); err != nil {
		return storage.User{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return storage.User{
		ID:        row.ID,
		Balance:   row.Balance,
		CreatedAt: fromMillis(row.CreatedAt),
		UpdatedAt: fromMillis(row.UpdatedAt),
	}, nil
}

func (t *txStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := t.tx.GetContext(ctx, &balance, `SELECT balance FROM users WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("balance for %s: %w", userID, err)
	}
	return balance, nil
}

// Debit uses a conditional update so the balance check and the write are a
// single statement.
func (t *txStore) Debit(ctx context.Context, m storage.Movement) (storage.LedgerEntry, error) {
	if m.Amount < 0 {
		return storage.LedgerEntry{}, fmt.Errorf("negative debit %d", m.Amount)
	}
	var after int64
	err := t.tx.GetContext(ctx, &after, `UPDATE users SET balance = balance - ?, updated_at = ?
		WHERE id = ? AND balance >= ? RETURNING balance`,
		m.Amount, toMillis(m.At), m.UserID, m.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		if _, berr := t.Balance(ctx, m.UserID); berr != nil {
			return storage.LedgerEntry{}, berr
		}
		return storage.LedgerEntry{}, fmt.Errorf("debit %d from %s: %w", m.Amount, m.UserID, storage.ErrInsufficientFunds)
	}
	if err != nil {
		return storage.LedgerEntry{}, fmt.Errorf("debit %s: %w", m.UserID, err)
	}
	return t.appendLedger(ctx, m, after+m.Amount, after)
}

func (t *txStore) Credit(ctx context.Context, m storage.Movement) (storage.LedgerEntry, error) {
	if m.Amount < 0 {
		return storage.LedgerEntry{}, fmt.Errorf("negative credit %d", m.Amount)
	}
	var after int64
	err := t.tx.GetContext(ctx, &after, `UPDATE users SET balance = balance + ?, updated_at = ?
		WHERE id = ? RETURNING balance`,
		m.Amount, toMillis(m.At), m.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LedgerEntry{}, fmt.Errorf("user %s: %w", m.UserID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.LedgerEntry{}, fmt.Errorf("credit %s: %w", m.UserID, err)
	}
	return t.appendLedger(ctx, m, after-m.Amount, after)
}

func (t *txStore) appendLedger(ctx context.Context, m storage.Movement, before, after int64) (storage.LedgerEntry, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO wallet_ledger
		(user_id, kind, amount, before_amount, after_amount, round_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, string(m.Kind), m.Amount, before, after, m.RoundID, toMillis(m.At))
	if err != nil {
		return storage.LedgerEntry{}, fmt.Errorf("append ledger: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.LedgerEntry{}, fmt.Errorf("ledger id: %w", err)
	}
	return storage.LedgerEntry{
		ID:        id,
		UserID:    m.UserID,
		Kind:      m.Kind,
		Amount:    m.Amount,
		Before:    before,
		After:     after,
		RoundID:   m.RoundID,
		CreatedAt: m.At.UTC(),
	}, nil
}

func (t *txStore) ActiveRound(ctx context.Context, userID string) (storage.RoundRecord, error) {
	var row roundRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+roundColumns+` FROM rounds
		WHERE user_id = ? AND phase != ? LIMIT 1`, userID, string(game.Complete))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RoundRecord{}, fmt.Errorf("active round for %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.RoundRecord{}, fmt.Errorf("active round for %s: %w", userID, err)
	}
	return row.toRecord(), nil
}

func (t *txStore) LoadRound(ctx context.Context, roundID string) (storage.RoundRecord, error) {
	var row roundRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, roundID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RoundRecord{}, fmt.Errorf("round %s: %w", roundID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.RoundRecord{}, fmt.Errorf("load round %s: %w", roundID, err)
	}
	return row.toRecord(), nil
}

func (t *txStore) SaveRound(ctx context.Context, rec storage.RoundRecord) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO rounds (`+roundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			bet = excluded.bet,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		rec.ID, rec.UserID, string(rec.Phase), rec.Bet, rec.State,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("save round %s: %w", rec.ID, storage.ErrActiveRound)
	}
	if err != nil {
		return fmt.Errorf("save round %s: %w", rec.ID, err)
	}
	return nil
}

func (t *txStore) AppendGameRecord(ctx context.Context, rec storage.GameRecord) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO game_records
		(round_id, user_id, result, player_score, dealer_score, bet_amount, payout, blackjack, doubled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RoundID, rec.UserID, string(rec.Outcome), rec.PlayerScore, rec.DealerScore,
		rec.Bet, rec.Payout, rec.Blackjack, rec.Doubled, toMillis(rec.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("round %s: %w", rec.RoundID, storage.ErrAlreadySettled)
	}
	if err != nil {
		return fmt.Errorf("append game record: %w", err)
	}
	return nil
}

func (t *txStore) UpdateRanking(ctx context.Context, userID string, payout int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO rankings (user_id, best_payout, games, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			best_payout = MAX(best_payout, excluded.best_payout),
			games = games + 1,
			updated_at = CASE WHEN excluded.best_payout > best_payout THEN excluded.updated_at ELSE updated_at END`,
		userID, payout, toMillis(at))
	if err != nil {
		return fmt.Errorf("update ranking for %s: %w", userID, err)
	}
	return nil
}
