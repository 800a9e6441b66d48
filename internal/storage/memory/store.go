// Package memory is an in-process storage implementation used by tests and
// the simulator. Transactions are serialized by a single lock and rolled
// back by replaying an undo log of the rows they touched.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
)

const defaultLimit = 50

type state struct {
	users    map[string]storage.User
	rounds   map[string]storage.RoundRecord
	records  []storage.GameRecord
	ledger   []storage.LedgerEntry
	rankings map[string]storage.Ranking

	// active maps a user to their unfinished round
	active map[string]string
	// settled holds the round ids that already have a game record
	settled map[string]struct{}
}

// Store keeps everything in maps guarded by a mutex
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{st: &state{
		users:    make(map[string]storage.User),
		rounds:   make(map[string]storage.RoundRecord),
		rankings: make(map[string]storage.Ranking),
		active:   make(map[string]string),
		settled:  make(map[string]struct{}),
	}}
}

func (s *Store) Close() error { return nil }

// WithTx holds the store lock for the duration of fn. A failed fn is undone
// row by row, so rollback cost depends only on what fn wrote.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st}
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) Records(_ context.Context, userID string, limit int) ([]storage.GameRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.GameRecord
	for i := len(s.st.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r := s.st.records[i]; userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Stats(_ context.Context, userID string) (storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := storage.Stats{UserID: userID}
	for _, r := range s.st.records {
		if r.UserID != userID {
			continue
		}
		stats.TotalGames++
		stats.TotalBet += r.Bet
		stats.TotalPayout += r.Payout
		switch r.Outcome {
		case game.Win:
			stats.Wins++
		case game.Lose:
			stats.Losses++
		case game.Draw:
			stats.Draws++
		}
	}
	stats.ComputeWinRate()
	return stats, nil
}

func (s *Store) Rankings(_ context.Context, limit int) ([]storage.Ranking, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.Lock()
	out := make([]storage.Ranking, 0, len(s.st.rankings))
	for _, r := range s.st.rankings {
		out = append(out, r)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BestPayout != out[j].BestPayout {
			return out[i].BestPayout > out[j].BestPayout
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (s *Store) Ledger(_ context.Context, userID string, limit int) ([]storage.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.LedgerEntry
	for i := len(s.st.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.st.ledger[i]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) StaleRounds(_ context.Context, before time.Time, limit int) ([]storage.RoundRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.Lock()
	var out []storage.RoundRecord
	for _, r := range s.st.rounds {
		if r.Phase != game.Complete && r.UpdatedAt.Before(before) {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type tx struct {
	st   *state
	undo []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// setKey writes m[k] and records how to restore the previous value.
func setKey[V any](t *tx, m map[string]V, k string, v V) {
	prev, existed := m[k]
	t.undo = append(t.undo, func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// deleteKey removes m[k] and records how to restore it.
func deleteKey[V any](t *tx, m map[string]V, k string) {
	prev, existed := m[k]
	if !existed {
		return
	}
	t.undo = append(t.undo, func() { m[k] = prev })
	delete(m, k)
}

func (t *tx) EnsureUser(_ context.Context, userID string, startBalance int64, at time.Time) (storage.User, error) {
	if userID == "" {
		return storage.User{}, fmt.Errorf("user id is required")
	}
	if u, ok := t.st.users[userID]; ok {
		return u, nil
	}
	u := storage.User{ID: userID, Balance: startBalance, CreatedAt: at.UTC(), UpdatedAt: at.UTC()}
	setKey(t, t.st.users, userID, u)
	return u, nil
}

func (t *tx) Balance(_ context.Context, userID string) (int64, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	return u.Balance, nil
}

func (t *tx) Debit(_ context.Context, m storage.Movement) (storage.LedgerEntry, error) {
	if m.Amount < 0 {
		return storage.LedgerEntry{}, fmt.Errorf("negative debit %d", m.Amount)
	}
	u, ok := t.st.users[m.UserID]
	if !ok {
		return storage.LedgerEntry{}, fmt.Errorf("user %s: %w", m.UserID, storage.ErrNotFound)
	}
	if u.Balance < m.Amount {
		return storage.LedgerEntry{}, fmt.Errorf("debit %d from %s: %w", m.Amount, m.UserID, storage.ErrInsufficientFunds)
	}
	return t.move(u, m, -m.Amount), nil
}

func (t *tx) Credit(_ context.Context, m storage.Movement) (storage.LedgerEntry, error) {
	if m.Amount < 0 {
		return storage.LedgerEntry{}, fmt.Errorf("negative credit %d", m.Amount)
	}
	u, ok := t.st.users[m.UserID]
	if !ok {
		return storage.LedgerEntry{}, fmt.Errorf("user %s: %w", m.UserID, storage.ErrNotFound)
	}
	return t.move(u, m, m.Amount), nil
}

func (t *tx) move(u storage.User, m storage.Movement, delta int64) storage.LedgerEntry {
	before := u.Balance
	u.Balance += delta
	u.UpdatedAt = m.At.UTC()
	setKey(t, t.st.users, u.ID, u)

	e := storage.LedgerEntry{
		ID:        int64(len(t.st.ledger) + 1),
		UserID:    u.ID,
		Kind:      m.Kind,
		Amount:    m.Amount,
		Before:    before,
		After:     u.Balance,
		RoundID:   m.RoundID,
		CreatedAt: m.At.UTC(),
	}
	n := len(t.st.ledger)
	t.undo = append(t.undo, func() { t.st.ledger = t.st.ledger[:n] })
	t.st.ledger = append(t.st.ledger, e)
	return e
}

func (t *tx) ActiveRound(_ context.Context, userID string) (storage.RoundRecord, error) {
	if id, ok := t.st.active[userID]; ok {
		r := t.st.rounds[id]
		r.State = append([]byte(nil), r.State...)
		return r, nil
	}
	return storage.RoundRecord{}, fmt.Errorf("active round for %s: %w", userID, storage.ErrNotFound)
}

func (t *tx) LoadRound(_ context.Context, roundID string) (storage.RoundRecord, error) {
	r, ok := t.st.rounds[roundID]
	if !ok {
		return storage.RoundRecord{}, fmt.Errorf("round %s: %w", roundID, storage.ErrNotFound)
	}
	r.State = append([]byte(nil), r.State...)
	return r, nil
}

func (t *tx) SaveRound(_ context.Context, rec storage.RoundRecord) error {
	activeID, hasActive := t.st.active[rec.UserID]
	if rec.Phase != game.Complete && hasActive && activeID != rec.ID {
		return fmt.Errorf("save round %s: %w", rec.ID, storage.ErrActiveRound)
	}
	if existing, ok := t.st.rounds[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	rec.State = append([]byte(nil), rec.State...)
	setKey(t, t.st.rounds, rec.ID, rec)

	switch {
	case rec.Phase != game.Complete:
		setKey(t, t.st.active, rec.UserID, rec.ID)
	case hasActive && activeID == rec.ID:
		deleteKey(t, t.st.active, rec.UserID)
	}
	return nil
}

func (t *tx) AppendGameRecord(_ context.Context, rec storage.GameRecord) error {
	if _, ok := t.st.settled[rec.RoundID]; ok {
		return fmt.Errorf("round %s: %w", rec.RoundID, storage.ErrAlreadySettled)
	}
	setKey(t, t.st.settled, rec.RoundID, struct{}{})

	n := len(t.st.records)
	t.undo = append(t.undo, func() { t.st.records = t.st.records[:n] })
	t.st.records = append(t.st.records, rec)
	return nil
}

func (t *tx) UpdateRanking(_ context.Context, userID string, payout int64, at time.Time) error {
	r, ok := t.st.rankings[userID]
	if !ok {
		setKey(t, t.st.rankings, userID, storage.Ranking{UserID: userID, BestPayout: payout, Games: 1, UpdatedAt: at.UTC()})
		return nil
	}
	r.Games++
	if payout > r.BestPayout {
		r.BestPayout = payout
		r.UpdatedAt = at.UTC()
	}
	setKey(t, t.st.rankings, userID, r)
	return nil
}
