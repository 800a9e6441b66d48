package main

import (
	"context"
	"time"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/storage/sqlite"
)

// ServerCmd runs the HTTP and WebSocket server
type ServerCmd struct {
	Config   string `kong:"default='blackjack.hcl',help='HCL config file (optional)'"`
	Addr     string `kong:"help='Server address, overrides the config file'"`
	Database string `kong:"help='SQLite database path, overrides the config file'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
	Seed     *int64 `kong:"help='Deterministic shuffle seed (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.Database != "" {
		cfg.Database = c.Database
	}
	if c.Debug {
		cfg.LogLevel = "debug"
	}

	level, err := shared.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := shared.SetupLogger(false)
	logger.SetLevel(level)

	ctx := shared.SetupSignalHandler(logger)

	store, err := sqlite.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	var opts []server.Option
	if c.Seed != nil {
		logger.Info("Using deterministic seed", "seed", *c.Seed)
		opts = append(opts, server.WithSeed(*c.Seed))
	}

	gs, err := server.NewGameService(store, cfg.Table, logger, opts...)
	if err != nil {
		return err
	}

	table := gs.Table()
	logger.Info("Starting blackjack server",
		"address", cfg.Addr,
		"database", cfg.Database,
		"start_balance", table.StartBalance,
		"min_bet", table.MinBet,
		"max_bet", table.MaxBet,
		"dealer_policy", table.DealerPolicy,
		"dealer_reacts_on_hit", table.ReactsOnHit(),
		"round_ttl", table.RoundTTL)

	if cfg.ReapInterval > 0 {
		server.NewReaper(gs, cfg.ReapInterval, logger).Start(ctx)
	}

	var serverOpts []server.ServerOption
	if cfg.AuthURL != "" {
		logger.Info("Validating callers with identity service", "url", cfg.AuthURL)
		serverOpts = append(serverOpts, server.WithValidator(auth.NewHTTPValidator(cfg.AuthURL, cfg.AuthSecret)))
	}

	s := server.NewServer(cfg.Addr, gs, logger, serverOpts...)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
