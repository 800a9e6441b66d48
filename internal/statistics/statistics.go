package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/blackjack/internal/game"
)

// RoundResult represents the outcome of a single simulated round
type RoundResult struct {
	Net        float64 // Net result in base bets (a won double is +2)
	Seed       int64   // Deck seed for this round (for replay)
	Outcome    game.Outcome
	Blackjack  bool
	Doubled    bool
	PlayerBust bool
	DealerBust bool
	Actions    int // Player actions taken after the deal
}

// OutcomeStats tracks the results that ended with one outcome
type OutcomeStats struct {
	Rounds int
	SumNet float64
}

// Statistics tracks blackjack simulation statistics
type Statistics struct {
	Rounds  int
	SumNet  float64
	SumNet2 float64   // Sum of squares for variance calculation
	Values  []float64 // Store all values for median/percentile calculation

	Wins   OutcomeStats
	Losses OutcomeStats
	Draws  OutcomeStats
	AllNet float64 // Total net for the ledger check

	Blackjacks  int
	Doubles     int
	DoublesNet  float64
	PlayerBusts int
	DealerBusts int
	Actions     int
}

// Mean returns the arithmetic mean of all results in bets per round
func (s *Statistics) Mean() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.SumNet / float64(s.Rounds)
}

// Variance returns the sample variance of all results
func (s *Statistics) Variance() float64 {
	if s.Rounds < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumNet2 - float64(s.Rounds)*mean*mean) / float64(s.Rounds-1)
}

// StdDev returns the sample standard deviation of all results
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Rounds))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// HouseEdge is the player's expected loss per bet, as a fraction
func (s *Statistics) HouseEdge() float64 {
	return -s.Mean()
}

// Add incorporates a new round result into the statistics
func (s *Statistics) Add(result RoundResult) {
	net := result.Net
	s.Rounds++
	s.SumNet += net
	s.SumNet2 += net * net
	s.Values = append(s.Values, net)
	s.AllNet += net
	s.Actions += result.Actions

	switch result.Outcome {
	case game.Win:
		s.Wins.Rounds++
		s.Wins.SumNet += net
	case game.Lose:
		s.Losses.Rounds++
		s.Losses.SumNet += net
	case game.Draw:
		s.Draws.Rounds++
		s.Draws.SumNet += net
	}

	if result.Blackjack {
		s.Blackjacks++
	}
	if result.Doubled {
		s.Doubles++
		s.DoublesNet += net
	}
	if result.PlayerBust {
		s.PlayerBusts++
	}
	if result.DealerBust {
		s.DealerBusts++
	}
}

// Merge folds other into s. Workers keep their own Statistics and merge at
// the end.
func (s *Statistics) Merge(other *Statistics) {
	s.Rounds += other.Rounds
	s.SumNet += other.SumNet
	s.SumNet2 += other.SumNet2
	s.Values = append(s.Values, other.Values...)
	s.AllNet += other.AllNet
	s.Actions += other.Actions

	s.Wins.Rounds += other.Wins.Rounds
	s.Wins.SumNet += other.Wins.SumNet
	s.Losses.Rounds += other.Losses.Rounds
	s.Losses.SumNet += other.Losses.SumNet
	s.Draws.Rounds += other.Draws.Rounds
	s.Draws.SumNet += other.Draws.SumNet

	s.Blackjacks += other.Blackjacks
	s.Doubles += other.Doubles
	s.DoublesNet += other.DoublesNet
	s.PlayerBusts += other.PlayerBusts
	s.DealerBusts += other.DealerBusts
}

// Rate returns n as a fraction of all rounds
func (s *Statistics) Rate(n int) float64 {
	if s.Rounds == 0 {
		return 0
	}
	return float64(n) / float64(s.Rounds)
}

// Median returns the median value of all results
func (s *Statistics) Median() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := s.sorted()
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := s.sorted()

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func (s *Statistics) sorted() []float64 {
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)
	return sorted
}

// IsLedgerBalanced checks that the per-outcome totals add up
func (s *Statistics) IsLedgerBalanced() bool {
	return math.Abs(s.AllNet-s.Wins.SumNet-s.Losses.SumNet-s.Draws.SumNet) <= 1e-6
}

// Validate performs comprehensive validation of statistics data
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: all=%.6f, wins=%.6f, losses=%.6f, draws=%.6f",
			s.AllNet, s.Wins.SumNet, s.Losses.SumNet, s.Draws.SumNet)
	}

	if s.Rounds <= 0 {
		return fmt.Errorf("invalid rounds count: %d", s.Rounds)
	}

	if len(s.Values) != s.Rounds {
		return fmt.Errorf("values array length (%d) does not match rounds count (%d)",
			len(s.Values), s.Rounds)
	}

	if total := s.Wins.Rounds + s.Losses.Rounds + s.Draws.Rounds; total != s.Rounds {
		return fmt.Errorf("outcome total (%d) does not match rounds count (%d)", total, s.Rounds)
	}

	if s.Wins.SumNet < 0 || s.Losses.SumNet > 0 {
		return fmt.Errorf("outcome sign mismatch: wins=%.2f, losses=%.2f", s.Wins.SumNet, s.Losses.SumNet)
	}

	if s.Blackjacks > s.Wins.Rounds+s.Draws.Rounds {
		return fmt.Errorf("blackjacks (%d) exceed wins and draws (%d)", s.Blackjacks, s.Wins.Rounds+s.Draws.Rounds)
	}

	return nil
}
