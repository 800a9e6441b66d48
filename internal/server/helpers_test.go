package server

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// stackedDeck returns a full deck that deals prefix first. Start deals two
// player cards then two dealer cards.
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

type testService struct {
	*GameService
	store *memory.Store
	clock *quartz.Mock
}

func newTestService(t *testing.T, table TableConfig, prefix string, opts ...Option) *testService {
	t.Helper()

	store := memory.New()
	clock := quartz.NewMock(t)
	opts = append([]Option{
		WithClock(clock),
		WithDeckFactory(func() *deck.Deck { return stackedDeck(prefix) }),
	}, opts...)

	gs, err := NewGameService(store, table, testLogger(), opts...)
	require.NoError(t, err)
	return &testService{GameService: gs, store: store, clock: clock}
}
