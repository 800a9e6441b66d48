package simulator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/bot"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/evaluator"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/statistics"
	"github.com/lox/blackjack/internal/storage/memory"
	"golang.org/x/sync/errgroup"
)

const (
	// simBalance is large enough that no worker ever runs out of chips
	simBalance = int64(1) << 50
	// maxActions caps a single round; no legal round needs this many
	maxActions = 16
)

// Config holds configuration for running simulations
type Config struct {
	Rounds   int
	Workers  int
	Strategy string
	Bet      int64
	Seed     int64
	Policy   string
	Timeout  time.Duration
	Logger   *log.Logger
	// Progress, when set, is called after every completed round with the
	// running total
	Progress func(done int)
}

// Simulator plays many rounds of one bot strategy through the game service
type Simulator struct {
	config Config
	done   atomic.Int64
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Bet <= 0 {
		config.Bet = 10
	}
	if config.Strategy == "" {
		config.Strategy = "basic"
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	return &Simulator{config: config}
}

// Run executes the simulation and returns merged results
func (s *Simulator) Run(ctx context.Context) (*statistics.Statistics, error) {
	if s.config.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", s.config.Rounds)
	}
	if _, err := bot.New(s.config.Strategy, nil, s.config.Logger); err != nil {
		return nil, err
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	workers := min(s.config.Workers, s.config.Rounds)
	results := make([]*statistics.Statistics, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			stats, err := s.runWorker(ctx, w, workers)
			if err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			results[w] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &statistics.Statistics{}
	for _, r := range results {
		stats.Merge(r)
	}

	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}
	return stats, nil
}

// worker plays every round whose index is congruent to id modulo workers.
// Round i always uses the deck derived from (seed, i), so results do not
// depend on the worker count.
type worker struct {
	gs     *server.GameService
	userID string
	seed   int64
}

func (s *Simulator) runWorker(ctx context.Context, id, workers int) (*statistics.Statistics, error) {
	w := &worker{userID: fmt.Sprintf("sim-%d", id)}

	table := server.TableConfig{
		StartBalance: simBalance,
		MinBet:       1,
		MaxBet:       s.config.Bet,
		DealerPolicy: s.config.Policy,
	}
	logger := s.config.Logger.WithPrefix("sim")
	gs, err := server.NewGameService(memory.New(), table, logger,
		server.WithDeckFactory(func() *deck.Deck {
			return deck.NewShuffledDeck(randutil.New(w.seed))
		}),
	)
	if err != nil {
		return nil, err
	}
	w.gs = gs

	stats := &statistics.Statistics{}
	for i := id; i < s.config.Rounds; i += workers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("round %d: %w", i, err)
		}
		w.seed = randutil.Derive(s.config.Seed, i)

		result, err := s.playRound(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("round %d (seed %d): %w", i, w.seed, err)
		}
		stats.Add(result)

		done := int(s.done.Add(1))
		if s.config.Progress != nil {
			s.config.Progress(done)
		}
	}
	return stats, nil
}

// playRound plays one round to completion and converts it to base bets
func (s *Simulator) playRound(ctx context.Context, w *worker) (statistics.RoundResult, error) {
	b, err := bot.New(s.config.Strategy, randutil.New(randutil.Derive(w.seed, 0)), s.config.Logger)
	if err != nil {
		return statistics.RoundResult{}, err
	}

	snap, err := w.gs.StartRound(ctx, w.userID, s.config.Bet)
	if err != nil {
		return statistics.RoundResult{}, err
	}

	actions := 0
	for !snap.IsComplete() {
		if actions >= maxActions {
			return statistics.RoundResult{}, fmt.Errorf("round %s still active after %d actions", snap.RoundID, actions)
		}
		view, err := bot.ViewFromSnapshot(snap)
		if err != nil {
			return statistics.RoundResult{}, err
		}

		d := b.Decide(view)
		switch d.Action {
		case bot.Hit:
			snap, err = w.gs.Hit(ctx, w.userID, snap.RoundID)
		case bot.Stand:
			snap, err = w.gs.Stand(ctx, w.userID, snap.RoundID)
		case bot.DoubleDown:
			snap, err = w.gs.DoubleDown(ctx, w.userID, snap.RoundID)
		default:
			err = fmt.Errorf("unknown action %v", d.Action)
		}
		if err != nil {
			return statistics.RoundResult{}, fmt.Errorf("%s: %w", d.Action, err)
		}
		actions++
	}

	return resultFromSnapshot(snap, s.config.Bet, w.seed, actions), nil
}

func resultFromSnapshot(snap game.Snapshot, bet, seed int64, actions int) statistics.RoundResult {
	var payout int64
	if snap.Payout != nil {
		payout = *snap.Payout
	}
	playerBust := snap.PlayerScore > evaluator.Blackjack
	return statistics.RoundResult{
		Net:        float64(payout-snap.BetAmount) / float64(bet),
		Seed:       seed,
		Outcome:    snap.Result,
		Blackjack:  snap.Blackjack,
		Doubled:    snap.Doubled,
		PlayerBust: playerBust,
		DealerBust: !playerBust && snap.DealerScore > evaluator.Blackjack,
		Actions:    actions,
	}
}

// PrintSummary writes a summary of simulation results
func PrintSummary(w io.Writer, stats *statistics.Statistics, strategy string) {
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== FINAL RESULTS for %s strategy ===\n", strategy)
	fmt.Fprintf(w, "Rounds played: %d\n", stats.Rounds)

	fmt.Fprintf(w, "\n=== STATISTICAL RESULTS ===\n")
	fmt.Fprintf(w, "Mean: %.4f bets/round\n", stats.Mean())
	fmt.Fprintf(w, "House edge: %.2f%%\n", stats.HouseEdge()*100)
	fmt.Fprintf(w, "Median: %.4f bets/round\n", stats.Median())
	fmt.Fprintf(w, "Std Dev: %.4f bets\n", stats.StdDev())
	fmt.Fprintf(w, "Std Error: %.4f bets\n", stats.StdError())
	fmt.Fprintf(w, "95%% CI: [%.4f, %.4f] bets/round\n", low, high)
	fmt.Fprintf(w, "Percentiles: P5=%.3f, P25=%.3f, P75=%.3f, P95=%.3f\n",
		stats.Percentile(0.05), stats.Percentile(0.25), stats.Percentile(0.75), stats.Percentile(0.95))

	fmt.Fprintf(w, "\n=== OUTCOMES ===\n")
	for _, row := range []struct {
		name string
		o    statistics.OutcomeStats
	}{
		{"Wins", stats.Wins},
		{"Losses", stats.Losses},
		{"Draws", stats.Draws},
	} {
		fmt.Fprintf(w, "%-7s %d rounds (%.1f%%), %.2f bets\n",
			row.name+":", row.o.Rounds, stats.Rate(row.o.Rounds)*100, row.o.SumNet)
	}
	fmt.Fprintf(w, "Sanity check: %.2f + %.2f + %.2f = %.2f (should equal %.2f)\n",
		stats.Wins.SumNet, stats.Losses.SumNet, stats.Draws.SumNet,
		stats.Wins.SumNet+stats.Losses.SumNet+stats.Draws.SumNet, stats.SumNet)

	fmt.Fprintf(w, "\n=== PLAY ANALYSIS ===\n")
	fmt.Fprintf(w, "Blackjacks: %d (%.2f%%)\n", stats.Blackjacks, stats.Rate(stats.Blackjacks)*100)
	fmt.Fprintf(w, "Doubles: %d (%.2f%%), %.2f bets\n", stats.Doubles, stats.Rate(stats.Doubles)*100, stats.DoublesNet)
	fmt.Fprintf(w, "Player busts: %d (%.1f%%)\n", stats.PlayerBusts, stats.Rate(stats.PlayerBusts)*100)
	fmt.Fprintf(w, "Dealer busts: %d (%.1f%%)\n", stats.DealerBusts, stats.Rate(stats.DealerBusts)*100)
	if stats.Rounds > 0 {
		fmt.Fprintf(w, "Actions per round: %.2f\n", float64(stats.Actions)/float64(stats.Rounds))
	}
	fmt.Fprintln(w, strings.Repeat("=", 40))
}
