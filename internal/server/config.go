package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/blackjack/internal/dealer"
)

// Config is the complete server configuration
type Config struct {
	Addr         string        `env:"BLACKJACK_ADDR"`
	Database     string        `env:"BLACKJACK_DATABASE"`
	LogLevel     string        `env:"BLACKJACK_LOG_LEVEL"`
	ReapInterval time.Duration `env:"BLACKJACK_REAP_INTERVAL"`
	// AuthURL points at an identity service; empty trusts caller user ids
	AuthURL    string `env:"BLACKJACK_AUTH_URL"`
	AuthSecret string `env:"BLACKJACK_AUTH_SECRET"`
	Table      TableConfig
}

// TableConfig holds the rules and limits of the table
type TableConfig struct {
	StartBalance  int64         `env:"BLACKJACK_START_BALANCE"`
	MinBet        int64         `env:"BLACKJACK_MIN_BET"`
	MaxBet        int64         `env:"BLACKJACK_MAX_BET"`
	DealerPolicy  string        `env:"BLACKJACK_DEALER_POLICY"`
	RiskThreshold float64       `env:"BLACKJACK_RISK_THRESHOLD"`
	RoundTTL      time.Duration `env:"BLACKJACK_ROUND_TTL"`
	// DealerReactsOnHit is a pointer so an explicit false survives defaults
	DealerReactsOnHit *bool `env:"BLACKJACK_DEALER_REACTS_ON_HIT"`
}

const (
	defaultAddr          = "localhost:8080"
	defaultDatabase      = "blackjack.db"
	defaultLogLevel      = "info"
	defaultReapInterval  = 30 * time.Second
	defaultStartBalance  = 1000
	defaultMinBet        = 1
	defaultMaxBet        = 500
	defaultDealerPolicy  = "house"
	defaultRoundTTL      = 10 * time.Minute
	defaultReactsOnHit   = true
	defaultRiskThreshold = dealer.DefaultRiskThreshold
)

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() Config {
	return Config{
		Addr:         defaultAddr,
		Database:     defaultDatabase,
		LogLevel:     defaultLogLevel,
		ReapInterval: defaultReapInterval,
		Table:        DefaultTableConfig(),
	}
}

// DefaultTableConfig returns the default table rules
func DefaultTableConfig() TableConfig {
	return TableConfig{}.withDefaults()
}

func (t TableConfig) withDefaults() TableConfig {
	if t.StartBalance == 0 {
		t.StartBalance = defaultStartBalance
	}
	if t.MinBet == 0 {
		t.MinBet = defaultMinBet
	}
	if t.MaxBet == 0 {
		t.MaxBet = defaultMaxBet
	}
	if t.DealerPolicy == "" {
		t.DealerPolicy = defaultDealerPolicy
	}
	if t.RiskThreshold == 0 {
		t.RiskThreshold = defaultRiskThreshold
	}
	if t.RoundTTL == 0 {
		t.RoundTTL = defaultRoundTTL
	}
	if t.DealerReactsOnHit == nil {
		v := defaultReactsOnHit
		t.DealerReactsOnHit = &v
	}
	return t
}

// ReactsOnHit reports whether the dealer takes a draw decision after each hit
func (t TableConfig) ReactsOnHit() bool {
	if t.DealerReactsOnHit == nil {
		return defaultReactsOnHit
	}
	return *t.DealerReactsOnHit
}

// Validate checks table limits
func (t TableConfig) Validate() error {
	if t.StartBalance < 0 {
		return fmt.Errorf("invalid start_balance: %d", t.StartBalance)
	}
	if t.MinBet < 1 {
		return fmt.Errorf("invalid min_bet: %d", t.MinBet)
	}
	if t.MaxBet < t.MinBet {
		return fmt.Errorf("max_bet %d is below min_bet %d", t.MaxBet, t.MinBet)
	}
	if t.RiskThreshold < 0 || t.RiskThreshold > 1 {
		return fmt.Errorf("risk_threshold must be within [0,1], got %v", t.RiskThreshold)
	}
	if t.RoundTTL < 0 {
		return fmt.Errorf("invalid round_ttl: %s", t.RoundTTL)
	}
	if _, err := dealer.New(t.DealerPolicy, nil, t.RiskThreshold); err != nil {
		return err
	}
	return nil
}

// Validate checks the whole configuration
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	if c.ReapInterval < 0 {
		return fmt.Errorf("invalid reap_interval: %s", c.ReapInterval)
	}
	if c.AuthSecret != "" && c.AuthURL == "" {
		return errors.New("auth_secret requires auth_url")
	}
	return c.Table.Validate()
}

// fileConfig is the HCL layout. Durations are strings such as "30s".
type fileConfig struct {
	Server *serverBlock `hcl:"server,block"`
	Table  *tableBlock  `hcl:"table,block"`
}

type serverBlock struct {
	Addr         string `hcl:"addr,optional"`
	Database     string `hcl:"database,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	ReapInterval string `hcl:"reap_interval,optional"`
	AuthURL      string `hcl:"auth_url,optional"`
	AuthSecret   string `hcl:"auth_secret,optional"`
}

type tableBlock struct {
	StartBalance      int64   `hcl:"start_balance,optional"`
	MinBet            int64   `hcl:"min_bet,optional"`
	MaxBet            int64   `hcl:"max_bet,optional"`
	DealerPolicy      string  `hcl:"dealer_policy,optional"`
	RiskThreshold     float64 `hcl:"risk_threshold,optional"`
	DealerReactsOnHit *bool   `hcl:"dealer_reacts_on_hit,optional"`
	RoundTTL          string  `hcl:"round_ttl,optional"`
}

// LoadConfig reads an HCL file, falling back to defaults when it does not
// exist, then applies BLACKJACK_* environment overrides.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if err := cfg.loadFile(filename); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Table = cfg.Table.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if s := fc.Server; s != nil {
		if s.Addr != "" {
			c.Addr = s.Addr
		}
		if s.Database != "" {
			c.Database = s.Database
		}
		if s.LogLevel != "" {
			c.LogLevel = s.LogLevel
		}
		if s.ReapInterval != "" {
			d, err := time.ParseDuration(s.ReapInterval)
			if err != nil {
				return fmt.Errorf("invalid reap_interval: %w", err)
			}
			c.ReapInterval = d
		}
		if s.AuthURL != "" {
			c.AuthURL = s.AuthURL
		}
		if s.AuthSecret != "" {
			c.AuthSecret = s.AuthSecret
		}
	}

	if t := fc.Table; t != nil {
		if t.StartBalance != 0 {
			c.Table.StartBalance = t.StartBalance
		}
		if t.MinBet != 0 {
			c.Table.MinBet = t.MinBet
		}
		if t.MaxBet != 0 {
			c.Table.MaxBet = t.MaxBet
		}
		if t.DealerPolicy != "" {
			c.Table.DealerPolicy = t.DealerPolicy
		}
		if t.RiskThreshold != 0 {
			c.Table.RiskThreshold = t.RiskThreshold
		}
		if t.DealerReactsOnHit != nil {
			c.Table.DealerReactsOnHit = t.DealerReactsOnHit
		}
		if t.RoundTTL != "" {
			d, err := time.ParseDuration(t.RoundTTL)
			if err != nil {
				return fmt.Errorf("invalid round_ttl: %w", err)
			}
			c.Table.RoundTTL = d
		}
	}
	return nil
}
