// Package metrics exposes Prometheus counters and gauges for the trading
// engine on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the engine's operational counters.
type Metrics struct {
	registry *prometheus.Registry

	// Guard decisions
	GuardDenials *prometheus.CounterVec
	GuardAllows  prometheus.Counter

	// Orders and trades
	OrdersPlaced   *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec
	TradesSettled  *prometheus.CounterVec
	RealizedPnL    *prometheus.GaugeVec

	// Pipeline health
	ForecastFetches  *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec
	PredictionsMade  *prometheus.CounterVec
	SignalsEmitted   *prometheus.CounterVec
	CyclesRun        prometheus.Counter
	CyclesStalled    prometheus.Counter
	StreamReconnects prometheus.Counter

	// Risk state
	ConsecutiveLosses *prometheus.GaugeVec
	DailyExposure     *prometheus.GaugeVec
	CooldownActive    *prometheus.GaugeVec

	// Approval queue
	PendingTransitions *prometheus.CounterVec
}

// New creates the metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		GuardDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_guard_denials_total",
				Help: "Risk guard denials by reason",
			},
			[]string{"reason"},
		),
		GuardAllows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "boz_guard_allows_total",
				Help: "Risk guard approvals",
			},
		),

		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_orders_placed_total",
				Help: "Orders placed on the exchange",
			},
			[]string{"city", "side"},
		),
		OrdersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_orders_rejected_total",
				Help: "Orders rejected by the exchange",
			},
			[]string{"city"},
		),
		TradesSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_trades_settled_total",
				Help: "Trades closed by settlement, by outcome",
			},
			[]string{"city", "outcome"},
		),
		RealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boz_realized_pnl_cents",
				Help: "Realized P&L today in cents",
			},
			[]string{"user"},
		),

		ForecastFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_forecast_fetches_total",
				Help: "Successful forecast fetches by source",
			},
			[]string{"source", "city"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_fetch_failures_total",
				Help: "Failed provider fetches by source",
			},
			[]string{"source", "city"},
		),
		PredictionsMade: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_predictions_total",
				Help: "Bracket predictions generated",
			},
			[]string{"city", "confidence"},
		),
		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_signals_total",
				Help: "Trade signals emitted by the EV scanner",
			},
			[]string{"city", "side"},
		),
		CyclesRun: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "boz_trade_cycles_total",
				Help: "Trade cycles completed",
			},
		),
		CyclesStalled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "boz_trade_cycles_stalled_total",
				Help: "Trade cycles cancelled by the watchdog",
			},
		),
		StreamReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "boz_stream_reconnects_total",
				Help: "Order-book stream reconnect attempts",
			},
		),

		ConsecutiveLosses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boz_consecutive_losses",
				Help: "Current consecutive-loss count",
			},
			[]string{"user"},
		),
		DailyExposure: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boz_daily_exposure_cents",
				Help: "Cents of exposure opened today",
			},
			[]string{"user"},
		),
		CooldownActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "boz_cooldown_active",
				Help: "1 when the loss cooldown is in effect",
			},
			[]string{"user"},
		),

		PendingTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boz_pending_transitions_total",
				Help: "Approval-queue state transitions",
			},
			[]string{"to"},
		),
	}

	registry.MustRegister(
		m.GuardDenials, m.GuardAllows,
		m.OrdersPlaced, m.OrdersRejected, m.TradesSettled, m.RealizedPnL,
		m.ForecastFetches, m.FetchFailures, m.PredictionsMade, m.SignalsEmitted,
		m.CyclesRun, m.CyclesStalled, m.StreamReconnects,
		m.ConsecutiveLosses, m.DailyExposure, m.CooldownActive,
		m.PendingTransitions,
	)

	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
