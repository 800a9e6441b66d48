package bot

import (
	"github.com/charmbracelet/log"
)

// BasicBot plays the textbook basic-strategy chart for hit, stand and
// double. There is no splitting at this table, so pairs play as totals.
type BasicBot struct {
	logger *log.Logger
}

// NewBasicBot creates a new BasicBot instance
func NewBasicBot(logger *log.Logger) *BasicBot {
	return &BasicBot{logger: logger}
}

func (b *BasicBot) Name() string { return "basic" }

func (b *BasicBot) Decide(v View) Decision {
	total := v.Player.Score()
	up := upValue(v.DealerUp)

	var d Decision
	if v.Player.IsSoft() {
		d = softDecision(total, up, v.CanDouble())
	} else {
		d = hardDecision(total, up, v.CanDouble())
	}

	b.logger.Debug("Bot decision",
		"hand", v.Player.String(),
		"total", total,
		"soft", v.Player.IsSoft(),
		"dealerUp", up,
		"action", d.Action,
		"reasoning", d.Reasoning)
	return d
}

func between(v, lo, hi int) bool { return v >= lo && v <= hi }

func hardDecision(total, up int, canDouble bool) Decision {
	switch {
	case total >= 17:
		return Decision{Stand, "hard 17 or more"}
	case total >= 13:
		if between(up, 2, 6) {
			return Decision{Stand, "dealer showing a bust card"}
		}
		return Decision{Hit, "dealer showing strength"}
	case total == 12:
		if between(up, 4, 6) {
			return Decision{Stand, "12 against a weak dealer"}
		}
		return Decision{Hit, "12 against 2, 3 or strength"}
	case total == 11:
		if canDouble && between(up, 2, 10) {
			return Decision{DoubleDown, "double 11"}
		}
		return Decision{Hit, "11"}
	case total == 10:
		if canDouble && between(up, 2, 9) {
			return Decision{DoubleDown, "double 10"}
		}
		return Decision{Hit, "10"}
	case total == 9:
		if canDouble && between(up, 3, 6) {
			return Decision{DoubleDown, "double 9 against a weak dealer"}
		}
		return Decision{Hit, "9"}
	default:
		return Decision{Hit, "8 or less"}
	}
}

func softDecision(total, up int, canDouble bool) Decision {
	switch {
	case total >= 19:
		return Decision{Stand, "soft 19 or more"}
	case total == 18:
		switch {
		case canDouble && between(up, 3, 6):
			return Decision{DoubleDown, "double soft 18"}
		case between(up, 2, 8):
			return Decision{Stand, "soft 18"}
		default:
			return Decision{Hit, "soft 18 against strength"}
		}
	case total == 17:
		if canDouble && between(up, 3, 6) {
			return Decision{DoubleDown, "double soft 17"}
		}
		return Decision{Hit, "soft 17"}
	case total >= 15:
		if canDouble && between(up, 4, 6) {
			return Decision{DoubleDown, "double soft 15-16"}
		}
		return Decision{Hit, "soft 15-16"}
	default:
		if canDouble && between(up, 5, 6) {
			return Decision{DoubleDown, "double soft 13-14"}
		}
		return Decision{Hit, "soft 14 or less"}
	}
}
