// Package storagetest holds behaviour tests shared by every storage
// implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a store implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("EnsureUserCreatesOnce", func(t *testing.T) { testEnsureUser(t, newStore(t)) })
	t.Run("DebitAndCredit", func(t *testing.T) { testDebitCredit(t, newStore(t)) })
	t.Run("DebitNeverGoesNegative", func(t *testing.T) { testDebitInsufficient(t, newStore(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("RollbackRestoresSettlement", func(t *testing.T) { testRollbackSettlement(t, newStore(t)) })
	t.Run("RoundLifecycle", func(t *testing.T) { testRounds(t, newStore(t)) })
	t.Run("OneActiveRoundPerUser", func(t *testing.T) { testOneActiveRound(t, newStore(t)) })
	t.Run("GameRecordsAndStats", func(t *testing.T) { testRecords(t, newStore(t)) })
	t.Run("DuplicateGameRecord", func(t *testing.T) { testDuplicateRecord(t, newStore(t)) })
	t.Run("Rankings", func(t *testing.T) { testRankings(t, newStore(t)) })
	t.Run("StaleRounds", func(t *testing.T) { testStaleRounds(t, newStore(t)) })
}

func withTx(t *testing.T, s storage.Store, fn func(storage.Tx) error) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), fn))
}

func seedUser(t *testing.T, s storage.Store, id string, balance int64) {
	t.Helper()
	withTx(t, s, func(tx storage.Tx) error {
		_, err := tx.EnsureUser(context.Background(), id, balance, epoch)
		return err
	})
}

func balance(t *testing.T, s storage.Store, id string) int64 {
	t.Helper()
	var b int64
	withTx(t, s, func(tx storage.Tx) error {
		var err error
		b, err = tx.Balance(context.Background(), id)
		return err
	})
	return b
}

func testEnsureUser(t *testing.T, s storage.Store) {
	ctx := context.Background()
	withTx(t, s, func(tx storage.Tx) error {
		u, err := tx.EnsureUser(ctx, "alice", 1000, epoch)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), u.Balance)

		u, err = tx.EnsureUser(ctx, "alice", 5, epoch.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1000), u.Balance, "existing users keep their balance")
		assert.True(t, epoch.Equal(u.CreatedAt))
		return nil
	})

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Balance(ctx, "nobody")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDebitCredit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)

	withTx(t, s, func(tx storage.Tx) error {
		e, err := tx.Debit(ctx, storage.Movement{UserID: "alice", Amount: 30, Kind: storage.LedgerBet, RoundID: "r1", At: epoch})
		require.NoError(t, err)
		assert.Equal(t, int64(100), e.Before)
		assert.Equal(t, int64(70), e.After)

		e, err = tx.Credit(ctx, storage.Movement{UserID: "alice", Amount: 60, Kind: storage.LedgerPayout, RoundID: "r1", At: epoch})
		require.NoError(t, err)
		assert.Equal(t, int64(70), e.Before)
		assert.Equal(t, int64(130), e.After)
		return nil
	})
	assert.Equal(t, int64(130), balance(t, s, "alice"))

	entries, err := s.Ledger(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, storage.LedgerPayout, entries[0].Kind, "newest first")
	assert.Equal(t, storage.LedgerBet, entries[1].Kind)
	assert.Equal(t, "r1", entries[1].RoundID)
}

func testDebitInsufficient(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 50)

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Debit(ctx, storage.Movement{UserID: "alice", Amount: 51, Kind: storage.LedgerBet, At: epoch})
		return err
	})
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
	assert.ErrorIs(t, err, game.ErrInsufficientFunds)
	assert.Equal(t, int64(50), balance(t, s, "alice"))

	err = s.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Debit(ctx, storage.Movement{UserID: "ghost", Amount: 1, Kind: storage.LedgerBet, At: epoch})
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentDebits(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx storage.Tx) error {
				_, err := tx.Debit(ctx, storage.Movement{UserID: "alice", Amount: 30, Kind: storage.LedgerBet, At: epoch})
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, int64(10), balance(t, s, "alice"))
}

func testRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Debit(ctx, storage.Movement{UserID: "alice", Amount: 40, Kind: storage.LedgerBet, At: epoch}); err != nil {
			return err
		}
		if err := tx.SaveRound(ctx, roundRecord("r1", "alice", game.AwaitingPlayerAction, epoch)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int64(100), balance(t, s, "alice"))
	err = s.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LoadRound(ctx, "r1")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	entries, err := s.Ledger(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testRollbackSettlement(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)
	withTx(t, s, func(tx storage.Tx) error {
		return tx.SaveRound(ctx, roundRecord("r1", "alice", game.AwaitingPlayerAction, epoch))
	})
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.SaveRound(ctx, roundRecord("r1", "alice", game.Complete, epoch.Add(time.Second))); err != nil {
			return err
		}
		if err := tx.AppendGameRecord(ctx, record("r1", "alice", game.Win, 10, 20, epoch)); err != nil {
			return err
		}
		if err := tx.UpdateRanking(ctx, "alice", 20, epoch); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	withTx(t, s, func(tx storage.Tx) error {
		active, err := tx.ActiveRound(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "r1", active.ID)
		assert.Equal(t, game.AwaitingPlayerAction, active.Phase)
		return nil
	})

	err = s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.SaveRound(ctx, roundRecord("r2", "alice", game.AwaitingPlayerAction, epoch))
	})
	assert.ErrorIs(t, err, storage.ErrActiveRound)

	ranks, err := s.Rankings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ranks)

	recs, err := s.Records(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	withTx(t, s, func(tx storage.Tx) error {
		return tx.AppendGameRecord(ctx, record("r1", "alice", game.Win, 10, 20, epoch))
	})
}

func roundRecord(id, user string, phase game.Phase, at time.Time) storage.RoundRecord {
	return storage.RoundRecord{
		ID:        id,
		UserID:    user,
		Phase:     phase,
		Bet:       10,
		State:     []byte(fmt.Sprintf(`{"id":%q}`, id)),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func testRounds(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)

	withTx(t, s, func(tx storage.Tx) error {
		_, err := tx.ActiveRound(ctx, "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, tx.SaveRound(ctx, roundRecord("r1", "alice", game.AwaitingPlayerAction, epoch)))

		active, err := tx.ActiveRound(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "r1", active.ID)
		assert.Equal(t, `{"id":"r1"}`, string(active.State))

		done := roundRecord("r1", "alice", game.Complete, epoch.Add(time.Minute))
		done.Bet = 20
		require.NoError(t, tx.SaveRound(ctx, done))

		loaded, err := tx.LoadRound(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, game.Complete, loaded.Phase)
		assert.Equal(t, int64(20), loaded.Bet)
		assert.True(t, epoch.Equal(loaded.CreatedAt))
		assert.True(t, epoch.Add(time.Minute).Equal(loaded.UpdatedAt))

		_, err = tx.ActiveRound(ctx, "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})
}

func testOneActiveRound(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)
	seedUser(t, s, "bob", 100)

	withTx(t, s, func(tx storage.Tx) error {
		return tx.SaveRound(ctx, roundRecord("r1", "alice", game.AwaitingPlayerAction, epoch))
	})

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.SaveRound(ctx, roundRecord("r2", "alice", game.AwaitingPlayerAction, epoch))
	})
	assert.ErrorIs(t, err, storage.ErrActiveRound)

	withTx(t, s, func(tx storage.Tx) error {
		return tx.SaveRound(ctx, roundRecord("r3", "bob", game.AwaitingPlayerAction, epoch))
	})
}

func record(roundID, user string, outcome game.Outcome, bet, payout int64, at time.Time) storage.GameRecord {
	return storage.GameRecord{
		RoundID:     roundID,
		UserID:      user,
		Outcome:     outcome,
		PlayerScore: 20,
		DealerScore: 18,
		Bet:         bet,
		Payout:      payout,
		CreatedAt:   at,
	}
}

func testRecords(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)
	seedUser(t, s, "bob", 100)

	withTx(t, s, func(tx storage.Tx) error {
		require.NoError(t, tx.AppendGameRecord(ctx, record("r1", "alice", game.Win, 10, 20, epoch)))
		require.NoError(t, tx.AppendGameRecord(ctx, record("r2", "alice", game.Lose, 10, 0, epoch.Add(time.Second))))
		require.NoError(t, tx.AppendGameRecord(ctx, record("r3", "alice", game.Draw, 10, 10, epoch.Add(2*time.Second))))
		require.NoError(t, tx.AppendGameRecord(ctx, record("r4", "alice", game.Win, 10, 25, epoch.Add(3*time.Second))))
		require.NoError(t, tx.AppendGameRecord(ctx, record("r5", "bob", game.Lose, 10, 0, epoch)))
		return nil
	})

	stats, err := s.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalGames)
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.Draws)
	assert.InDelta(t, 0.5, stats.WinRate, 1e-9)
	assert.Equal(t, int64(15), stats.Net())

	empty, err := s.Stats(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalGames)
	assert.Zero(t, empty.WinRate)

	recs, err := s.Records(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r4", recs[0].RoundID)
	assert.Equal(t, "r3", recs[1].RoundID)
	assert.Equal(t, game.Win, recs[0].Outcome)

	all, err := s.Records(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testDuplicateRecord(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedUser(t, s, "alice", 100)
	withTx(t, s, func(tx storage.Tx) error {
		return tx.AppendGameRecord(ctx, record("r1", "alice", game.Win, 10, 20, epoch))
	})

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.AppendGameRecord(ctx, record("r1", "alice", game.Win, 10, 20, epoch))
	})
	assert.ErrorIs(t, err, storage.ErrAlreadySettled)
	assert.ErrorIs(t, err, game.ErrAlreadySettled)
}

func testRankings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		seedUser(t, s, u, 100)
	}

	withTx(t, s, func(tx storage.Tx) error {
		require.NoError(t, tx.UpdateRanking(ctx, "alice", 20, epoch))
		require.NoError(t, tx.UpdateRanking(ctx, "alice", 0, epoch.Add(time.Second)))
		require.NoError(t, tx.UpdateRanking(ctx, "bob", 50, epoch))
		require.NoError(t, tx.UpdateRanking(ctx, "carol", 20, epoch.Add(time.Minute)))
		return nil
	})

	ranks, err := s.Rankings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ranks, 3)
	assert.Equal(t, "bob", ranks[0].UserID)
	assert.Equal(t, 1, ranks[0].Rank)
	assert.Equal(t, "alice", ranks[1].UserID, "earlier best wins ties")
	assert.Equal(t, int64(20), ranks[1].BestPayout)
	assert.Equal(t, 2, ranks[1].Games)
	assert.Equal(t, "carol", ranks[2].UserID)
	assert.Equal(t, 3, ranks[2].Rank)

	top, err := s.Rankings(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func testStaleRounds(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol"} {
		seedUser(t, s, u, 100)
	}
	withTx(t, s, func(tx storage.Tx) error {
		require.NoError(t, tx.SaveRound(ctx, roundRecord("old", "alice", game.AwaitingPlayerAction, epoch)))
		require.NoError(t, tx.SaveRound(ctx, roundRecord("fresh", "bob", game.AwaitingPlayerAction, epoch.Add(time.Hour))))
		require.NoError(t, tx.SaveRound(ctx, roundRecord("done", "carol", game.Complete, epoch)))
		return nil
	})

	stale, err := s.StaleRounds(ctx, epoch.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
	assert.Equal(t, "alice", stale[0].UserID)
}
