package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/simulator"
)

// SimulateCmd plays a strategy against an in-memory table
type SimulateCmd struct {
	Rounds   int           `kong:"default='100000',help='Number of rounds to simulate'"`
	Workers  int           `kong:"default='4',help='Parallel workers'"`
	Strategy string        `kong:"default='basic',help='Strategy: basic, cautious, dealer or random'"`
	Policy   string        `kong:"default='house',help='Dealer policy'"`
	Bet      int64         `kong:"default='10',help='Bet per round'"`
	Seed     *int64        `kong:"help='Deterministic seed (optional)'"`
	Timeout  time.Duration `kong:"default='10m',help='Abort the run after this long'"`
	Output   string        `kong:"short='o',help='Write a JSON report to this file'"`
	Quiet    bool          `kong:"help='Hide the progress bar'"`
	Debug    bool          `kong:"help='Enable debug logging'"`
}

func (c *SimulateCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	ctx := shared.SetupSignalHandler(logger)

	seed := randutil.NewSeed()
	if c.Seed != nil {
		seed = *c.Seed
	}
	logger.Info("Starting simulation",
		"rounds", c.Rounds,
		"workers", c.Workers,
		"strategy", c.Strategy,
		"policy", c.Policy,
		"seed", seed)

	cfg := simulator.Config{
		Rounds:   c.Rounds,
		Workers:  c.Workers,
		Strategy: c.Strategy,
		Policy:   c.Policy,
		Bet:      c.Bet,
		Seed:     seed,
		Timeout:  c.Timeout,
		Logger:   logger,
	}

	var progress *SimpleProgressMonitor
	if !c.Quiet {
		progress = NewSimpleProgressMonitor(os.Stderr, c.Rounds)
		cfg.Progress = progress.OnRoundComplete
	}

	started := time.Now()
	stats, err := simulator.New(cfg).Run(ctx)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("simulation interrupted: %w", context.Cause(ctx))
		}
		return err
	}

	simulator.PrintSummary(os.Stdout, stats, c.Strategy)
	fmt.Printf("Seed: %d  Duration: %s\n", seed, time.Since(started).Round(time.Millisecond))

	if c.Output != "" {
		if err := simulator.WriteReport(c.Output, simulator.NewReport(cfg, stats)); err != nil {
			return err
		}
		logger.Info("Wrote report", "path", c.Output)
	}
	return nil
}
