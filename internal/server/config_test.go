package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blackjack.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, defaultDatabase, cfg.Database)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, defaultReapInterval, cfg.ReapInterval)
	assert.Equal(t, int64(1000), cfg.Table.StartBalance)
	assert.Equal(t, "house", cfg.Table.DealerPolicy)
	assert.True(t, cfg.Table.ReactsOnHit())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server {
  addr          = ":9000"
  database      = "/tmp/bj.db"
  log_level     = "debug"
  reap_interval = "5s"
}

table {
  start_balance        = 250
  min_bet              = 5
  max_bet              = 100
  dealer_policy        = "standard-h17"
  dealer_reacts_on_hit = false
  round_ttl            = "2m"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/tmp/bj.db", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ReapInterval)
	assert.Equal(t, int64(250), cfg.Table.StartBalance)
	assert.Equal(t, int64(5), cfg.Table.MinBet)
	assert.Equal(t, int64(100), cfg.Table.MaxBet)
	assert.Equal(t, "standard-h17", cfg.Table.DealerPolicy)
	assert.Equal(t, 2*time.Minute, cfg.Table.RoundTTL)
	assert.False(t, cfg.Table.ReactsOnHit())
	assert.InDelta(t, defaultRiskThreshold, cfg.Table.RiskThreshold, 1e-9)
}

func TestLoadConfigPartialBlocks(t *testing.T) {
	path := writeConfig(t, `
table {
  max_bet = 50
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, int64(50), cfg.Table.MaxBet)
	assert.Equal(t, int64(defaultMinBet), cfg.Table.MinBet)
	assert.True(t, cfg.Table.ReactsOnHit())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server {
  addr = ":9000"
}
table {
  start_balance = 250
}
`)
	t.Setenv("BLACKJACK_ADDR", ":7000")
	t.Setenv("BLACKJACK_START_BALANCE", "5000")
	t.Setenv("BLACKJACK_DEALER_POLICY", "standard")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, int64(5000), cfg.Table.StartBalance)
	assert.Equal(t, "standard", cfg.Table.DealerPolicy)
}

func TestLoadConfigAuth(t *testing.T) {
	path := writeConfig(t, `
server {
  auth_url = "http://identity.internal/validate"
}
`)
	t.Setenv("BLACKJACK_AUTH_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://identity.internal/validate", cfg.AuthURL)
	assert.Equal(t, "s3cret", cfg.AuthSecret)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad syntax", `server {`},
		{"unknown attribute", `server { port = 8080 }`},
		{"bad duration", `server { reap_interval = "soon" }`},
		{"bad log level", `server { log_level = "loud" }`},
		{"max below min", `table {
  min_bet = 50
  max_bet = 10
}`},
		{"unknown policy", `table { dealer_policy = "psychic" }`},
		{"risk out of range", `table { risk_threshold = 1.5 }`},
		{"secret without url", `server { auth_secret = "s3cret" }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestTableConfigDefaults(t *testing.T) {
	t.Parallel()
	table := DefaultTableConfig()
	require.NoError(t, table.Validate())
	assert.Equal(t, int64(defaultMaxBet), table.MaxBet)
	assert.Equal(t, defaultRoundTTL, table.RoundTTL)
}
