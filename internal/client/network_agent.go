package client

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/bot"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server"
)

// maxActions caps the number of decisions a bot makes in one round
const maxActions = 16

// Table is the subset of Client a NetworkAgent needs
type Table interface {
	StartRound(ctx context.Context, bet int64) (game.Snapshot, error)
	Hit(ctx context.Context, roundID string) (game.Snapshot, error)
	Stand(ctx context.Context, roundID string) (game.Snapshot, error)
	DoubleDown(ctx context.Context, roundID string) (game.Snapshot, error)
}

// NetworkAgent plays rounds against a remote server using a bot strategy
type NetworkAgent struct {
	table  Table
	bot    bot.Bot
	logger *log.Logger
}

// NewNetworkAgent creates a new network agent
func NewNetworkAgent(table Table, b bot.Bot, logger *log.Logger) *NetworkAgent {
	return &NetworkAgent{
		table:  table,
		bot:    b,
		logger: logger.WithPrefix("network-agent"),
	}
}

// PlayRound starts a round with the given bet and plays it to completion
func (na *NetworkAgent) PlayRound(ctx context.Context, bet int64) (game.Snapshot, error) {
	snap, err := na.table.StartRound(ctx, bet)
	if err != nil {
		return snap, err
	}
	return na.Resume(ctx, snap)
}

// Resume plays an already started round to completion
func (na *NetworkAgent) Resume(ctx context.Context, snap game.Snapshot) (game.Snapshot, error) {
	for actions := 0; !snap.IsComplete(); actions++ {
		if actions >= maxActions {
			return snap, fmt.Errorf("round %s still active after %d actions", snap.RoundID, actions)
		}

		view, err := bot.ViewFromSnapshot(snap)
		if err != nil {
			return snap, err
		}
		d := na.bot.Decide(view)
		na.logger.Debug("Bot action", "round", snap.RoundID, "action", d.Action, "reasoning", d.Reasoning)

		switch d.Action {
		case bot.Hit:
			snap, err = na.table.Hit(ctx, snap.RoundID)
		case bot.Stand:
			snap, err = na.table.Stand(ctx, snap.RoundID)
		case bot.DoubleDown:
			snap, err = na.table.DoubleDown(ctx, snap.RoundID)
		default:
			err = fmt.Errorf("unknown action %v", d.Action)
		}
		if err != nil {
			return snap, fmt.Errorf("%s: %w", d.Action, err)
		}
	}

	payout := int64(0)
	if snap.Payout != nil {
		payout = *snap.Payout
	}
	na.logger.Info("Round complete",
		"round", snap.RoundID,
		"result", snap.Result,
		"payout", payout,
		"balance", snap.Balance)
	return snap, nil
}

// Play runs rounds until n have completed, the context is cancelled or the
// balance can no longer cover the bet. It returns the completed rounds.
func (na *NetworkAgent) Play(ctx context.Context, n int, bet int64) ([]game.Snapshot, error) {
	var rounds []game.Snapshot
	for len(rounds) < n {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		snap, err := na.PlayRound(ctx, bet)
		if err != nil {
			if IsCode(err, server.CodeInsufficientFunds) {
				na.logger.Warn("Out of chips", "rounds", len(rounds))
				return rounds, nil
			}
			return rounds, err
		}
		rounds = append(rounds, snap)
	}
	return rounds, nil
}
