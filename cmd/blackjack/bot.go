package main

import (
	"fmt"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/bot"
	"github.com/lox/blackjack/internal/client"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/server"
)

// BotCmd plays rounds against a running server with a built-in strategy
type BotCmd struct {
	Server   string `kong:"default='http://localhost:8080',env='BLACKJACK_SERVER',help='Server URL'"`
	User     string `kong:"default='bot',env='BLACKJACK_USER',help='User id to play as'"`
	Token    string `kong:"env='BLACKJACK_TOKEN',help='Identity token, used instead of --user when set'"`
	Strategy string `kong:"default='basic',env='BLACKJACK_STRATEGY',help='Strategy: basic, cautious, dealer or random'"`
	Rounds   int    `kong:"default='100',env='BLACKJACK_ROUNDS',help='Number of rounds to play'"`
	Bet      int64  `kong:"default='10',env='BLACKJACK_BET',help='Bet per round'"`
	Seed     *int64 `kong:"env='BLACKJACK_SEED',help='Seed for randomised strategies (optional)'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
}

func (c *BotCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	ctx := shared.SetupSignalHandler(logger)

	seed := randutil.NewSeed()
	if c.Seed != nil {
		seed = *c.Seed
	}
	b, err := bot.New(c.Strategy, randutil.New(seed), logger)
	if err != nil {
		return err
	}

	cl := client.NewClient(c.Server, logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = cl.Disconnect() }()

	var auth server.AuthResponseData
	if c.Token != "" {
		auth, err = cl.AuthToken(ctx, c.Token)
	} else {
		auth, err = cl.Auth(ctx, c.User)
	}
	if err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}
	logger.Info("Authenticated", "user", auth.UserID, "balance", auth.Balance, "strategy", b.Name())

	agent := client.NewNetworkAgent(cl, b, logger)
	if auth.ActiveRound != nil {
		logger.Info("Finishing active round", "round", auth.ActiveRound.RoundID)
		if _, err := agent.Resume(ctx, *auth.ActiveRound); err != nil {
			return err
		}
	}

	rounds, err := agent.Play(ctx, c.Rounds, c.Bet)
	if err != nil && ctx.Err() == nil {
		return err
	}

	var net int64
	for _, r := range rounds {
		if r.Payout != nil {
			net += *r.Payout
		}
		net -= r.BetAmount
	}
	balance := auth.Balance
	if len(rounds) > 0 {
		balance = rounds[len(rounds)-1].Balance
	}
	logger.Info("Session complete", "rounds", len(rounds), "net", net, "balance", balance)
	return nil
}
