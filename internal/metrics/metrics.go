// Package metrics provides Prometheus metrics for the control loop and its
// data plumbing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	Ticks            prometheus.Counter
	TickDuration     prometheus.Histogram
	OpenPositions    prometheus.Gauge
	Trades           *prometheus.CounterVec
	Exits            *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	Ghosts           prometheus.Counter
	QueueDrops       *prometheus.CounterVec

	// Price metrics
	StalePriceReads  prometheus.Counter
	FallbackAttempts *prometheus.CounterVec
	MigrationsSeen   prometheus.Counter
	StreamReconnects prometheus.Counter
	PriceUpdates     *prometheus.CounterVec

	// Safety metrics
	Halts         *prometheus.CounterVec
	Cooldowns     prometheus.Counter
	DailyPnLSOL   prometheus.Gauge
	BalanceSOL    prometheus.Gauge
	TradingHalted prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "convexbot"
	}

	return &Metrics{
		Ticks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of control loop ticks",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Control loop tick duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "open_positions",
			Help:      "Number of open positions",
		}),
		Trades: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Total number of execution attempts by side and result",
		}, []string{"side", "result"}),
		Exits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "exits_total",
			Help:      "Total number of closed positions by reason",
		}, []string{"reason"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "state_transitions_total",
			Help:      "Total number of lifecycle transitions",
		}, []string{"from", "to"}),
		Ghosts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ghost_positions_total",
			Help:      "Total number of positions removed because the holding no longer exists",
		}),
		QueueDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "queue_drops_total",
			Help:      "Total number of queue entries dropped by queue and reason",
		}, []string{"queue", "reason"}),

		StalePriceReads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "stale_reads_total",
			Help:      "Total number of latest-price reads that returned a stale value",
		}),
		FallbackAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fallback_attempts_total",
			Help:      "Total number of pull fallback attempts by result",
		}, []string{"result"}),
		MigrationsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "migrations_total",
			Help:      "Total number of assets moved from the push stream to polling",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "stream_reconnects_total",
			Help:      "Total number of push stream reconnects",
		}),
		PriceUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "updates_total",
			Help:      "Total number of price updates by source and outcome",
		}, []string{"source", "outcome"}),

		Halts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "halts_total",
			Help:      "Total number of trading halts by reason",
		}, []string{"reason"}),
		Cooldowns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "cooldowns_total",
			Help:      "Total number of consecutive-loss cooldowns",
		}),
		DailyPnLSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "daily_pnl_sol",
			Help:      "Realized PnL for the current trading day in SOL",
		}),
		BalanceSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "balance_sol",
			Help:      "Tracked funding balance in SOL",
		}),
		TradingHalted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "halted",
			Help:      "1 while trading is halted",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records one completed control loop tick.
func RecordTick(d time.Duration, open int) {
	DefaultMetrics.Ticks.Inc()
	DefaultMetrics.TickDuration.Observe(d.Seconds())
	DefaultMetrics.OpenPositions.Set(float64(open))
}

// RecordTrade records an execution attempt.
func RecordTrade(side string, success bool) {
	result := "ok"
	if !success {
		result = "failed"
	}
	DefaultMetrics.Trades.WithLabelValues(side, result).Inc()
}

// RecordExit records a closed position.
func RecordExit(reason string) {
	DefaultMetrics.Exits.WithLabelValues(reason).Inc()
}

// RecordTransition records a lifecycle transition.
func RecordTransition(from, to string) {
	DefaultMetrics.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordGhost records a ghost position cleanup.
func RecordGhost() {
	DefaultMetrics.Ghosts.Inc()
}

// RecordQueueDrop records a dropped queue entry.
func RecordQueueDrop(queue, reason string) {
	DefaultMetrics.QueueDrops.WithLabelValues(queue, reason).Inc()
}

// RecordStaleRead records a degraded latest-price read.
func RecordStaleRead() {
	DefaultMetrics.StalePriceReads.Inc()
}

// RecordFallback records a pull fallback attempt.
func RecordFallback(result string) {
	DefaultMetrics.FallbackAttempts.WithLabelValues(result).Inc()
}

// RecordMigration records a stream-to-poll migration.
func RecordMigration() {
	DefaultMetrics.MigrationsSeen.Inc()
}

// RecordReconnect records a push stream reconnect.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordPriceUpdate records an accepted or rejected price update.
func RecordPriceUpdate(source string, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	DefaultMetrics.PriceUpdates.WithLabelValues(source, outcome).Inc()
}

// RecordHalt records a trading halt.
func RecordHalt(reason string) {
	DefaultMetrics.Halts.WithLabelValues(reason).Inc()
	DefaultMetrics.TradingHalted.Set(1)
}

// RecordResume clears the halted gauge.
func RecordResume() {
	DefaultMetrics.TradingHalted.Set(0)
}

// RecordCooldown records a consecutive-loss cooldown.
func RecordCooldown() {
	DefaultMetrics.Cooldowns.Inc()
}

// UpdateAccount updates the account gauges.
func UpdateAccount(balance, dailyPnL float64) {
	DefaultMetrics.BalanceSOL.Set(balance)
	DefaultMetrics.DailyPnLSOL.Set(dailyPnL)
}
