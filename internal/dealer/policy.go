package dealer

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/evaluator"
)

// DefaultRiskThreshold is the bust risk below which the house policy chases a
// player that is ahead.
const DefaultRiskThreshold = 0.5

// Policy decides whether the dealer draws another card
type Policy interface {
	// ShouldHit reports whether the dealer should draw given its hand and the
	// player's current score.
	ShouldHit(hand evaluator.Hand, playerScore int) bool
	Name() string
}

// HousePolicy is the default dealer behaviour. Beyond the usual "hit below
// 17, hit soft 17" it keeps drawing while trailing the player as long as the
// bust risk stays under the threshold.
type HousePolicy struct {
	RiskThreshold float64
	logger        *log.Logger
}

// NewHousePolicy creates a house policy with the given risk threshold. A
// non-positive threshold falls back to DefaultRiskThreshold.
func NewHousePolicy(logger *log.Logger, riskThreshold float64) *HousePolicy {
	if riskThreshold <= 0 {
		riskThreshold = DefaultRiskThreshold
	}
	return &HousePolicy{
		RiskThreshold: riskThreshold,
		logger:        withPrefix(logger),
	}
}

func (p *HousePolicy) Name() string { return "house" }

// ShouldHit applies the rules in order; the first match decides.
func (p *HousePolicy) ShouldHit(hand evaluator.Hand, playerScore int) bool {
	total := hand.Score()
	soft := hand.IsSoft()
	risk := hand.BustRisk()
	soft17 := soft && total == 17

	hit, reason := false, "default"
	switch {
	case total >= 17 && !soft17:
		hit, reason = false, "17 or more"
	case soft17:
		hit, reason = true, "soft 17"
	case total < playerScore && risk < p.RiskThreshold:
		hit, reason = true, "trailing player with low risk"
	case total < 17:
		hit, reason = true, "under 17"
	}

	p.logger.Debug("Dealer decision",
		"total", total,
		"playerScore", playerScore,
		"bustRisk", risk,
		"soft", soft,
		"hit", hit,
		"reason", reason)
	return hit
}

// StandardPolicy is the textbook casino rule: draw to 17, optionally also
// drawing on soft 17. The player's score is ignored.
type StandardPolicy struct {
	HitSoft17 bool
	logger    *log.Logger
}

// NewStandardPolicy creates a fixed-rule dealer policy
func NewStandardPolicy(logger *log.Logger, hitSoft17 bool) *StandardPolicy {
	return &StandardPolicy{HitSoft17: hitSoft17, logger: withPrefix(logger)}
}

func (p *StandardPolicy) Name() string {
	if p.HitSoft17 {
		return "standard-h17"
	}
	return "standard"
}

func (p *StandardPolicy) ShouldHit(hand evaluator.Hand, _ int) bool {
	total := hand.Score()
	hit := total < 17 || (p.HitSoft17 && total == 17 && hand.IsSoft())
	p.logger.Debug("Dealer decision", "total", total, "soft", hand.IsSoft(), "hit", hit)
	return hit
}

// New returns the policy registered under name: "house", "standard" or
// "standard-h17".
func New(name string, logger *log.Logger, riskThreshold float64) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "house":
		return NewHousePolicy(logger, riskThreshold), nil
	case "standard", "s17":
		return NewStandardPolicy(logger, false), nil
	case "standard-h17", "h17":
		return NewStandardPolicy(logger, true), nil
	default:
		return nil, fmt.Errorf("unknown dealer policy %q", name)
	}
}

func withPrefix(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return logger.WithPrefix("dealer")
}
