package spawner

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func TestSpawnerRunsToCompletion(t *testing.T) {
	spawner := New("http://localhost:8080", testLogger())
	t.Cleanup(func() { _ = spawner.StopAll() })

	require.NoError(t, spawner.Spawn(BotSpec{Command: "sleep", Args: []string{"1"}, Count: 3, Strategy: "basic"}))
	assert.Equal(t, 3, spawner.ActiveCount())
	assert.Equal(t, []string{"basic-1", "basic-2", "basic-3"}, spawner.Users())

	require.NoError(t, spawner.Wait())
	assert.Equal(t, 0, spawner.ActiveCount())
}

func TestSpawnerReportsFailures(t *testing.T) {
	spawner := New("http://localhost:8080", testLogger())
	t.Cleanup(func() { _ = spawner.StopAll() })

	require.NoError(t, spawner.Spawn(BotSpec{Command: "sh", Args: []string{"-c", "exit 3"}}))
	err := spawner.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot-1")

	err = spawner.Spawn(BotSpec{Command: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestSpawnerEnvironment(t *testing.T) {
	out := t.TempDir()
	script := filepath.Join(out, "bot.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
echo "$BLACKJACK_SERVER $BLACKJACK_STRATEGY $BLACKJACK_ROUNDS $BLACKJACK_BET $BLACKJACK_SEED $EXTRA" > "$OUT/$BLACKJACK_USER"
`), 0o755))

	spawner := NewWithSeed("http://tables:8080", testLogger(), 42)
	t.Cleanup(func() { _ = spawner.StopAll() })

	require.NoError(t, spawner.SpawnMany([]BotSpec{
		{Command: "sh", Args: []string{script}, Count: 2, Strategy: "cautious", Rounds: 50, Bet: 25, Env: map[string]string{"OUT": out, "EXTRA": "x"}},
	}))
	require.NoError(t, spawner.Wait())

	for user, want := range map[string]string{
		"cautious-1": "http://tables:8080 cautious 50 25 43 x",
		"cautious-2": "http://tables:8080 cautious 50 25 44 x",
	} {
		data, err := os.ReadFile(filepath.Join(out, user))
		require.NoError(t, err, user)
		assert.Equal(t, want, strings.TrimSpace(string(data)))
	}
}

func TestSpawnerStop(t *testing.T) {
	spawner := New("http://localhost:8080", testLogger())

	require.NoError(t, spawner.Spawn(BotSpec{Command: "sleep", Args: []string{"30"}}))
	assert.Equal(t, 1, spawner.ActiveCount())

	started := time.Now()
	require.NoError(t, spawner.StopAll())
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, 0, spawner.ActiveCount())
}

func TestParseBotSpecs(t *testing.T) {
	tests := []struct {
		in      string
		want    map[string]int
		wantErr bool
	}{
		{"basic:3,cautious:2", map[string]int{"basic": 3, "cautious": 2}, false},
		{"random", map[string]int{"random": 1}, false},
		{" Basic:1 , basic:2 ", map[string]int{"basic": 3}, false},
		{"basic:0", nil, true},
		{"basic:many", nil, true},
		{"", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBotSpecs(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
