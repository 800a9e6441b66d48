package server

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/metrics"
)

const reapBatch = 100

// Reaper stands abandoned rounds so their escrow is settled
type Reaper struct {
	gs       *GameService
	clock    quartz.Clock
	interval time.Duration
	ttl      time.Duration
	logger   *log.Logger
}

// NewReaper creates a reaper that sweeps every interval for rounds idle
// longer than the table's round TTL
func NewReaper(gs *GameService, interval time.Duration, logger *log.Logger) *Reaper {
	if logger == nil {
		logger = log.Default()
	}
	return &Reaper{
		gs:       gs,
		clock:    gs.Clock(),
		interval: interval,
		ttl:      gs.Table().RoundTTL,
		logger:   logger.WithPrefix("reaper"),
	}
}

// Start begins sweeping until ctx is cancelled. The returned waiter
// completes when the ticker stops.
func (r *Reaper) Start(ctx context.Context) quartz.Waiter {
	r.logger.Info("Reaper started", "interval", r.interval, "ttl", r.ttl)
	return r.clock.TickerFunc(ctx, r.interval, func() error {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Sweep failed", "error", err)
		}
		return nil
	}, "reaper")
}

// Sweep resolves every stale round once and returns how many were settled.
// Rounds busy with a player action are left for the next sweep.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-r.ttl)
	stale, err := r.gs.store.StaleRounds(ctx, cutoff, reapBatch)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, rec := range stale {
		_, err := r.gs.Stand(ctx, rec.UserID, rec.ID)
		switch {
		case err == nil:
			reaped++
			metrics.RecordReaped()
			r.logger.Info("Reaped stale round", "round", rec.ID, "user", rec.UserID, "idle", r.clock.Since(rec.UpdatedAt))
		case errors.Is(err, ErrRoundBusy), errors.Is(err, game.ErrRoundNotActive):
			r.logger.Debug("Skipping round", "round", rec.ID, "error", err)
		default:
			r.logger.Warn("Failed to reap round", "round", rec.ID, "error", err)
		}
	}
	return reaped, nil
}
