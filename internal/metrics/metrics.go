// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_actions_total",
			Help: "Player actions by action and result",
		},
		[]string{"action", "result"},
	)

	actionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackjack_action_duration_ms",
			Help:    "Player action duration in milliseconds, including storage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"action"},
	)

	roundsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_rounds_settled_total",
			Help: "Settled rounds by outcome",
		},
		[]string{"outcome", "blackjack"},
	)

	chipsWagered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackjack_chips_wagered_total",
		Help: "Chips escrowed as bets, including double downs",
	})

	chipsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackjack_chips_paid_total",
		Help: "Chips returned to players on settlement",
	})

	roundsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackjack_rounds_reaped_total",
		Help: "Abandoned rounds resolved by the reaper",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blackjack_websocket_connections",
		Help: "Open websocket connections",
	})
)

// RecordAction records the result of a player action. result is "success"
// or an error code.
func RecordAction(action, result string, started time.Time) {
	if result == "" {
		result = "success"
	}
	actionTotal.WithLabelValues(action, result).Inc()
	actionDuration.WithLabelValues(action).Observe(float64(time.Since(started).Microseconds()) / 1000)
}

// RecordSettlement records a settled round
func RecordSettlement(outcome string, blackjack bool, payout int64) {
	bj := "false"
	if blackjack {
		bj = "true"
	}
	roundsSettled.WithLabelValues(outcome, bj).Inc()
	chipsPaid.Add(float64(payout))
}

// RecordWager records chips moved into escrow
func RecordWager(amount int64) {
	chipsWagered.Add(float64(amount))
}

// RecordReaped counts a round resolved by the reaper
func RecordReaped() {
	roundsReaped.Inc()
}

// ConnectionOpened tracks a new websocket connection
func ConnectionOpened() { activeConnections.Inc() }

// ConnectionClosed tracks a closed websocket connection
func ConnectionClosed() { activeConnections.Dec() }
