package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
	"github.com/lox/blackjack/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRoundEscrowsBet(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	assert.Equal(t, game.AwaitingPlayerAction, snap.Phase)
	assert.Equal(t, int64(990), snap.Balance)
	assert.Equal(t, int64(10), snap.BetAmount)
	assert.Equal(t, 20, snap.PlayerScore)
	assert.Equal(t, 10, snap.DealerScore, "only the up-card counts before completion")
	assert.True(t, snap.DealerHand[1].Hidden)
	assert.Nil(t, snap.Payout)

	entries, err := gs.Ledger(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.LedgerBet, entries[0].Kind)
	assert.Equal(t, int64(1000), entries[0].Before)
	assert.Equal(t, int64(990), entries[0].After)
}

func TestStandWinPaysOut(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	snap, err = gs.Stand(ctx, "alice", snap.RoundID)
	require.NoError(t, err)

	assert.Equal(t, game.Complete, snap.Phase)
	assert.Equal(t, game.Win, snap.Result)
	require.NotNil(t, snap.Payout)
	assert.Equal(t, int64(20), *snap.Payout)
	assert.Equal(t, int64(1010), snap.Balance)
	assert.Equal(t, 17, snap.DealerScore)
	assert.False(t, snap.DealerHand[1].Hidden)

	stats, err := gs.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalGames)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, 1.0, stats.WinRate, 1e-9)

	records, err := gs.Records(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, snap.RoundID, records[0].RoundID)
	assert.Equal(t, int64(20), records[0].Payout)

	rankings, err := gs.Rankings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, "alice", rankings[0].UserID)
	assert.Equal(t, int64(20), rankings[0].BestPayout)
}

func TestPushIsLeftOffRankings(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "Th9cTd9d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	snap, err = gs.Stand(ctx, "alice", snap.RoundID)
	require.NoError(t, err)
	assert.Equal(t, game.Draw, snap.Result)
	require.NotNil(t, snap.Payout)
	assert.Equal(t, int64(10), *snap.Payout)
	assert.Equal(t, int64(1000), snap.Balance)

	stats, err := gs.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Draws)

	rankings, err := gs.Rankings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rankings)
}

func TestHitBustLosesBet(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d5s")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	snap, err = gs.Hit(ctx, "alice", snap.RoundID)
	require.NoError(t, err)

	assert.Equal(t, game.Complete, snap.Phase)
	assert.Equal(t, game.Lose, snap.Result)
	assert.Equal(t, 25, snap.PlayerScore)
	require.NotNil(t, snap.Payout)
	assert.Zero(t, *snap.Payout)
	assert.Equal(t, int64(990), snap.Balance)

	entries, err := gs.Ledger(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a zero payout is not credited")
}

func TestBlackjackSettlesOnDeal(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "AsKsTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	assert.Equal(t, game.Complete, snap.Phase)
	assert.True(t, snap.Blackjack)
	require.NotNil(t, snap.Payout)
	assert.Equal(t, int64(25), *snap.Payout)
	assert.Equal(t, int64(1015), snap.Balance)

	// the next round can start straight away
	_, err = gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)
}

func TestDoubleDownDebitsAgain(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "5s6sTd7dTh")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	snap, err = gs.DoubleDown(ctx, "alice", snap.RoundID)
	require.NoError(t, err)

	assert.True(t, snap.Doubled)
	assert.Equal(t, int64(20), snap.BetAmount)
	assert.Equal(t, 21, snap.PlayerScore)
	assert.Equal(t, game.Win, snap.Result)
	assert.Equal(t, int64(1020), snap.Balance)

	entries, err := gs.Ledger(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, storage.LedgerPayout, entries[0].Kind)
	assert.Equal(t, storage.LedgerDoubleDown, entries[1].Kind)
	assert.Equal(t, storage.LedgerBet, entries[2].Kind)
}

func TestDoubleDownInsufficientFundsLeavesRound(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{StartBalance: 15}, "5s6sTd7dTh")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	_, err = gs.DoubleDown(ctx, "alice", snap.RoundID)
	require.ErrorIs(t, err, game.ErrInsufficientFunds)

	after, err := gs.Round(ctx, "alice", snap.RoundID)
	require.NoError(t, err)
	assert.Equal(t, game.AwaitingPlayerAction, after.Phase)
	assert.Equal(t, int64(10), after.BetAmount)
	assert.Equal(t, int64(5), after.Balance)
	assert.Len(t, after.PlayerHand, 2, "the failed double drew nothing")
}

func TestStartRoundValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		bet    int64
		want   error
	}{
		{"no user", "", 10, ErrUnauthenticated},
		{"zero bet", "alice", 0, game.ErrInvalidBet},
		{"negative bet", "alice", -5, game.ErrInvalidBet},
		{"above table max", "alice", 501, game.ErrInvalidBet},
		{"at table max", "alice", 500, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := newTestService(t, TableConfig{}, "ThTcTd7d")
			_, err := gs.StartRound(ctx, tt.userID, tt.bet)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStartRoundInsufficientFunds(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{StartBalance: 50}, "ThTcTd7d")
	ctx := context.Background()

	balance, err := gs.Login(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)

	_, err = gs.StartRound(ctx, "alice", 60)
	require.ErrorIs(t, err, game.ErrInsufficientFunds)

	balance, err = gs.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	_, found, err := gs.ActiveRound(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOneActiveRoundPerUser(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	first, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	_, err = gs.StartRound(ctx, "alice", 10)
	require.ErrorIs(t, err, ErrRoundInProgress)

	balance, err := gs.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(990), balance)

	// other users are unaffected
	_, err = gs.StartRound(ctx, "bob", 10)
	require.NoError(t, err)

	_, err = gs.Stand(ctx, "alice", first.RoundID)
	require.NoError(t, err)
	_, err = gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)
}

func TestActionsOnUnknownRound(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")

	_, err := gs.Hit(context.Background(), "alice", "missing")
	require.ErrorIs(t, err, game.ErrRoundNotActive)
	require.ErrorIs(t, err, storage.ErrNotFound)

	code, status := ErrorCode(err)
	assert.Equal(t, CodeRoundNotActive, code)
	assert.Equal(t, 404, status)
}

func TestActionsAfterCompleteAreRejected(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)
	_, err = gs.Stand(ctx, "alice", snap.RoundID)
	require.NoError(t, err)

	for name, act := range map[string]func(context.Context, string, string) (game.Snapshot, error){
		"hit":         gs.Hit,
		"stand":       gs.Stand,
		"double_down": gs.DoubleDown,
	} {
		_, err := act(ctx, "alice", snap.RoundID)
		assert.ErrorIs(t, err, game.ErrRoundNotActive, name)
	}

	balance, err := gs.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1010), balance, "settled exactly once")

	records, err := gs.Records(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestActionOnAnotherUsersRound(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	_, err = gs.Hit(ctx, "mallory", snap.RoundID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = gs.Round(ctx, "mallory", snap.RoundID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestBusyRoundIsRejected(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	unlock, ok := gs.rounds.TryLock(snap.RoundID)
	require.True(t, ok)

	_, err = gs.Stand(ctx, "alice", snap.RoundID)
	require.ErrorIs(t, err, ErrRoundBusy)

	unlock()
	_, err = gs.Stand(ctx, "alice", snap.RoundID)
	require.NoError(t, err)
}

func TestConcurrentActionsSettleOnce(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gs.Stand(ctx, "alice", snap.RoundID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrRoundBusy) || errors.Is(err, game.ErrRoundNotActive), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	balance, err := gs.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1010), balance)
}

func TestConcurrentStartsOneActiveRound(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gs.StartRound(ctx, "alice", 10); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	balance, err := gs.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(990), balance)
}

func TestActiveRoundLookup(t *testing.T) {
	t.Parallel()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	ctx := context.Background()

	_, found, err := gs.ActiveRound(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)

	active, found, err := gs.ActiveRound(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snap.RoundID, active.RoundID)
}

func TestSeededServiceIsReproducible(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	deal := func() []string {
		gs, err := NewGameService(memory.New(), TableConfig{}, testLogger(), WithSeed(7))
		require.NoError(t, err)
		var hands []string
		for i := range 5 {
			snap, err := gs.StartRound(ctx, fmt.Sprintf("user-%d", i), 10)
			require.NoError(t, err)
			for _, v := range snap.PlayerHand {
				hands = append(hands, v.Code)
			}
		}
		return hands
	}

	assert.Equal(t, deal(), deal())
}

func TestNewGameServiceRejectsBadTable(t *testing.T) {
	t.Parallel()
	_, err := NewGameService(memory.New(), TableConfig{MinBet: 10, MaxBet: 5}, testLogger())
	require.Error(t, err)

	_, err = NewGameService(memory.New(), TableConfig{DealerPolicy: "nope"}, testLogger())
	require.Error(t, err)
}

func TestDealerReactionCanBeDisabled(t *testing.T) {
	t.Parallel()
	off := false
	// dealer 12 would draw the 9 on a reaction and reach 21
	gs := newTestService(t, TableConfig{DealerReactsOnHit: &off, DealerPolicy: "standard"}, "Th2cTd2d3s9h")
	ctx := context.Background()

	snap, err := gs.StartRound(ctx, "alice", 10)
	require.NoError(t, err)
	snap, err = gs.Hit(ctx, "alice", snap.RoundID)
	require.NoError(t, err)

	assert.Equal(t, 15, snap.PlayerScore)
	assert.Len(t, snap.DealerHand, 2)
}
