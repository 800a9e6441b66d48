package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/client"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/tui"
)

// PlayCmd connects to a server and opens the interactive table
type PlayCmd struct {
	Config string `kong:"default='blackjack-client.hcl',help='Client HCL config file (optional)'"`
	Server string `kong:"help='Server URL, overrides the config file'"`
	User   string `kong:"env='USER',help='User id to play as'"`
	Token  string `kong:"env='BLACKJACK_TOKEN',help='Identity token, used instead of the user id when set'"`
	Bet    int64  `kong:"help='Default bet, overrides the config file'"`
	Theme  string `kong:"help='Colour theme: default, dark, light or plain'"`
}

func (c *PlayCmd) Run() error {
	cfg, err := client.LoadClientConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Server != "" {
		cfg.Server.URL = c.Server
	}
	if c.User != "" && cfg.Player.UserID == "" {
		cfg.Player.UserID = c.User
	}
	if c.Token != "" {
		cfg.Player.Token = c.Token
	}
	if c.Bet > 0 {
		cfg.Player.DefaultBet = c.Bet
	}
	if c.Theme != "" {
		cfg.UI.Theme = c.Theme
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := shared.ParseLevel(cfg.UI.LogLevel)
	if err != nil {
		return err
	}
	logger, closeLog, err := shared.SetupFileLogger(cfg.UI.LogFile, level)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout())
	defer cancel()

	cl := client.NewClient(cfg.Server.URL, logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = cl.Disconnect() }()

	var auth server.AuthResponseData
	if cfg.Player.Token != "" {
		auth, err = cl.AuthToken(ctx, cfg.Player.Token)
	} else {
		auth, err = cl.Auth(ctx, cfg.Player.UserID)
	}
	if err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}

	tui.ApplyTheme(cfg.UI.Theme)
	model := tui.NewTUIModel(cl, tui.Options{
		UserID:         auth.UserID,
		Balance:        auth.Balance,
		DefaultBet:     cfg.Player.DefaultBet,
		ActiveRound:    auth.ActiveRound,
		ShowHints:      cfg.UI.ShowHints,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger)

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
