package simulator

import (

	"github.com/lox/blackjack/internal/fileutil"
	"github.com/lox/blackjack/internal/statistics"
)

// Report is the machine-readable summary of a simulation run
type Report struct {
	Strategy    string     `json:"strategy"`
	Policy      string     `json:"policy"`
	Seed        int64      `json:"seed"`
	Bet         int64      `json:"bet"`
	Rounds      int        `json:"rounds"`
	Mean        float64    `json:"mean"`
	HouseEdge   float64    `json:"house_edge"`
	StdDev      float64    `json:"std_dev"`
	CI95        [2]float64 `json:"ci95"`
	WinRate     float64    `json:"win_rate"`
	LossRate    float64    `json:"loss_rate"`
	DrawRate    float64    `json:"draw_rate"`
	Blackjacks  int        `json:"blackjacks"`
	Doubles     int        `json:"doubles"`
	PlayerBusts int        `json:"player_busts"`
	DealerBusts int        `json:"dealer_busts"`
}

// NewReport summarises stats for the run described by cfg
func NewReport(cfg Config, stats *statistics.Statistics) Report {
	low, high := stats.ConfidenceInterval95()
	return Report{
		Strategy:    cfg.Strategy,
		Policy:      cfg.Policy,
		Seed:        cfg.Seed,
		Bet:         cfg.Bet,
		Rounds:      stats.Rounds,
		Mean:        stats.Mean(),
		HouseEdge:   stats.HouseEdge(),
		StdDev:      stats.StdDev(),
		CI95:        [2]float64{low, high},
		WinRate:     stats.Rate(stats.Wins.Rounds),
		LossRate:    stats.Rate(stats.Losses.Rounds),
		DrawRate:    stats.Rate(stats.Draws.Rounds),
		Blackjacks:  stats.Blackjacks,
		Doubles:     stats.Doubles,
		PlayerBusts: stats.PlayerBusts,
		DealerBusts: stats.DealerBusts,
	}
}

// WriteReport atomically writes the report as JSON to path
func WriteReport(path string, r Report) error {
	return fileutil.WriteJSONAtomic(path, r, 0o644)
}
