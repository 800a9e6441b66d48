package bot

import (
	rand "math/rand/v2"

	"github.com/charmbracelet/log"
)

// DealerBot mimics the house: hit below 17 and on soft 17
type DealerBot struct {
	logger *log.Logger
}

// NewDealerBot creates a new DealerBot instance
func NewDealerBot(logger *log.Logger) *DealerBot {
	return &DealerBot{logger: logger}
}

func (d *DealerBot) Name() string { return "dealer" }

func (d *DealerBot) Decide(v View) Decision {
	total := v.Player.Score()
	if total < 17 || (total == 17 && v.Player.IsSoft()) {
		return Decision{Hit, "dealer-bot drawing to 17"}
	}
	return Decision{Stand, "dealer-bot standing"}
}

// CautiousBot never risks a bust: it stands on any hard 12 or more
type CautiousBot struct {
	logger *log.Logger
}

// NewCautiousBot creates a new CautiousBot instance
func NewCautiousBot(logger *log.Logger) *CautiousBot {
	return &CautiousBot{logger: logger}
}

func (c *CautiousBot) Name() string { return "cautious" }

func (c *CautiousBot) Decide(v View) Decision {
	if v.Player.BustRisk() > 0 && !v.Player.IsSoft() {
		return Decision{Stand, "cautious-bot avoiding bust"}
	}
	if v.Player.Score() >= 18 {
		return Decision{Stand, "cautious-bot happy with soft total"}
	}
	return Decision{Hit, "cautious-bot drawing safely"}
}

// RandBot is a simple bot that makes uniform random legal actions
type RandBot struct {
	rng    *rand.Rand
	logger *log.Logger
}

// NewRandBot creates a new RandBot instance
func NewRandBot(rng *rand.Rand, logger *log.Logger) *RandBot {
	return &RandBot{rng: rng, logger: logger}
}

func (r *RandBot) Name() string { return "random" }

func (r *RandBot) Decide(v View) Decision {
	actions := []Action{Hit, Stand}
	if v.CanDouble() {
		actions = append(actions, DoubleDown)
	}
	return Decision{actions[r.rng.IntN(len(actions))], "rand-bot random action"}
}
