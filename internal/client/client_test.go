package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/bot"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// stackedDeck returns a full deck that deals prefix first
func stackedDeck(prefix string) *deck.Deck {
	first := deck.MustParseCards(prefix)
	used := make(map[deck.Card]bool, len(first))
	for _, c := range first {
		used[c] = true
	}
	order := append([]deck.Card(nil), first...)
	for _, c := range deck.NewDeck().Stack() {
		if !used[c] {
			order = append(order, c)
		}
	}
	return deck.NewOrderedDeck(order...)
}

func startServer(t *testing.T, opts ...server.Option) string {
	t.Helper()

	gs, err := server.NewGameService(memory.New(), server.TableConfig{}, testLogger(), opts...)
	require.NoError(t, err)

	srv := server.NewServer("127.0.0.1:0", gs, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ts.URL
}

func connect(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(url, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWebSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws", false},
		{"https://tables.example.com", "wss://tables.example.com/ws", false},
		{"ws://127.0.0.1:9000/other", "ws://127.0.0.1:9000/ws", false},
		{"ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := WebSocketURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()

	url := startServer(t, server.WithDeckFactory(func() *deck.Deck { return stackedDeck("ThTcTd7d") }))
	c := connect(t, url)
	ctx := testContext(t)

	_, err := c.StartRound(ctx, 10)
	assert.True(t, IsCode(err, server.CodeUnauthenticated), "got %v", err)

	auth, err := c.Auth(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, auth.Success)
	assert.Equal(t, int64(1000), auth.Balance)
	assert.Equal(t, "alice", c.UserID())

	snap, err := c.StartRound(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(990), snap.Balance)
	require.Len(t, snap.DealerHand, 2)
	assert.True(t, snap.DealerHand[1].Hidden)

	got, err := c.GetRound(ctx, snap.RoundID)
	require.NoError(t, err)
	assert.Equal(t, snap.RoundID, got.RoundID)

	done, err := c.Stand(ctx, snap.RoundID)
	require.NoError(t, err)
	assert.Equal(t, game.Complete, done.Phase)
	assert.Equal(t, game.Win, done.Result)
	require.NotNil(t, done.Payout)
	assert.Equal(t, int64(20), *done.Payout)
	assert.Equal(t, int64(1010), done.Balance)

	_, err = c.Hit(ctx, snap.RoundID)
	assert.True(t, IsCode(err, server.CodeRoundNotActive), "got %v", err)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalGames)
	assert.Equal(t, 1, stats.Wins)
}

func TestClientAuthResumesRound(t *testing.T) {
	t.Parallel()

	url := startServer(t, server.WithDeckFactory(func() *deck.Deck { return stackedDeck("Th6cTd7d") }))
	ctx := testContext(t)

	first := connect(t, url)
	_, err := first.Auth(ctx, "bob")
	require.NoError(t, err)
	snap, err := first.StartRound(ctx, 25)
	require.NoError(t, err)
	require.NoError(t, first.Disconnect())

	second := connect(t, url)
	auth, err := second.Auth(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, auth.ActiveRound)
	assert.Equal(t, snap.RoundID, auth.ActiveRound.RoundID)
	assert.Equal(t, int64(975), auth.Balance)
}

type staticValidator map[string]string

func (v staticValidator) Validate(_ context.Context, token string) (auth.Identity, error) {
	if user, ok := v[token]; ok {
		return auth.Identity{UserID: user}, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

func TestClientAuthToken(t *testing.T) {
	t.Parallel()

	gs, err := server.NewGameService(memory.New(), server.TableConfig{}, testLogger())
	require.NoError(t, err)
	srv := server.NewServer("127.0.0.1:0", gs, testLogger(),
		server.WithValidator(staticValidator{"tok-gina": "gina"}))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := connect(t, ts.URL)
	ctx := testContext(t)

	_, err = c.AuthToken(ctx, "forged")
	assert.True(t, IsCode(err, server.CodeUnauthenticated), "got %v", err)
	assert.Empty(t, c.UserID())

	resp, err := c.AuthToken(ctx, "tok-gina")
	require.NoError(t, err)
	assert.Equal(t, "gina", resp.UserID)
	assert.Equal(t, "gina", c.UserID())
}

func TestRequestAfterDisconnect(t *testing.T) {
	t.Parallel()

	c := connect(t, startServer(t))
	require.NoError(t, c.Disconnect())

	_, err := c.Auth(testContext(t), "carol")
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.False(t, c.IsConnected())
}

func TestRemoteError(t *testing.T) {
	err := error(&RemoteError{Code: "round_busy", Message: "round is busy"})
	assert.Equal(t, "round_busy: round is busy", err.Error())
	assert.True(t, IsCode(err, "round_busy"))
	assert.False(t, IsCode(err, "forbidden"))
	assert.False(t, IsCode(errors.New("plain"), "round_busy"))
}

func TestNetworkAgentPlaysOverWebSocket(t *testing.T) {
	t.Parallel()

	c := connect(t, startServer(t, server.WithSeed(42)))
	ctx := testContext(t)
	_, err := c.Auth(ctx, "dave")
	require.NoError(t, err)

	agent := NewNetworkAgent(c, bot.NewBasicBot(testLogger()), testLogger())
	rounds, err := agent.Play(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, rounds, 5)
	for _, r := range rounds {
		assert.True(t, r.IsComplete())
		assert.NotNil(t, r.Payout)
	}
}

type brokeTable struct{}

func (brokeTable) StartRound(context.Context, int64) (game.Snapshot, error) {
	return game.Snapshot{}, &RemoteError{Code: server.CodeInsufficientFunds, Message: "balance 5 below bet 10"}
}

func (brokeTable) Hit(context.Context, string) (game.Snapshot, error) {
	return game.Snapshot{}, errors.New("unexpected")
}

func (brokeTable) Stand(context.Context, string) (game.Snapshot, error) {
	return game.Snapshot{}, errors.New("unexpected")
}

func (brokeTable) DoubleDown(context.Context, string) (game.Snapshot, error) {
	return game.Snapshot{}, errors.New("unexpected")
}

func TestNetworkAgentStopsWhenBroke(t *testing.T) {
	t.Parallel()

	agent := NewNetworkAgent(brokeTable{}, bot.NewDealerBot(testLogger()), testLogger())
	rounds, err := agent.Play(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestLoadClientConfig(t *testing.T) {
	t.Parallel()

	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "nope.hcl"))
		require.NoError(t, err)
		assert.Equal(t, DefaultClientConfig(), cfg)
	})

	t.Run("file values and defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "client.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`
server {
  url = "http://tables:9000"
}

player {
  user_id     = "erin"
  default_bet = 25
}

ui {
  theme = "dark"
}
`), 0o644))

		cfg, err := LoadClientConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "http://tables:9000", cfg.Server.URL)
		assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
		assert.Equal(t, "erin", cfg.Player.UserID)
		assert.Equal(t, int64(25), cfg.Player.DefaultBet)
		assert.Equal(t, "dark", cfg.UI.Theme)
		assert.Equal(t, "warn", cfg.UI.LogLevel)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("validation", func(t *testing.T) {
		cfg := DefaultClientConfig()
		assert.ErrorContains(t, cfg.Validate(), "user id")

		cfg.Player.UserID = "frank"
		cfg.UI.Theme = "neon"
		assert.ErrorContains(t, cfg.Validate(), "theme")
	})
}
