package main

import (
	"errors"
	"sort"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/bot"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/spawner"
)

// SpawnCmd runs several bot processes against one server
type SpawnCmd struct {
	Server string `kong:"default='http://localhost:8080',help='Server URL'"`
	Bots   string `kong:"default='basic:2,cautious:1,random:1',help='Bots to run as strategy:count pairs'"`
	Rounds int    `kong:"default='100',help='Rounds per bot'"`
	Bet    int64  `kong:"default='10',help='Bet per round'"`
	Seed   *int64 `kong:"help='Base seed; each bot gets seed+n (optional)'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
}

func (c *SpawnCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	ctx := shared.SetupSignalHandler(logger)

	counts, err := spawner.ParseBotSpecs(c.Bots)
	if err != nil {
		return err
	}
	strategies := make([]string, 0, len(counts))
	for name := range counts {
		if _, err := bot.New(name, nil, nil); err != nil {
			return err
		}
		strategies = append(strategies, name)
	}
	sort.Strings(strategies)

	seed := randutil.NewSeed()
	if c.Seed != nil {
		seed = *c.Seed
	}
	sp := spawner.NewWithSeed(c.Server, logger, seed)

	specs := make([]spawner.BotSpec, 0, len(strategies))
	for _, name := range strategies {
		spec, err := spawner.SelfSpec(name, counts[name])
		if err != nil {
			return err
		}
		spec.Rounds = c.Rounds
		spec.Bet = c.Bet
		specs = append(specs, spec)
	}
	if err := sp.SpawnMany(specs); err != nil {
		return err
	}
	logger.Info("Bots running", "bots", sp.Users(), "seed", seed)

	done := make(chan error, 1)
	go func() { done <- sp.Wait() }()

	select {
	case <-ctx.Done():
		logger.Info("Stopping bots...")
		_ = sp.StopAll()
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return errors.Join(errors.New("some bots failed"), err)
		}
		logger.Info("All bots finished")
		return nil
	}
}
