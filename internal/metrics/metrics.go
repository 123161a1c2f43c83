// Package metrics provides Prometheus metrics for the execution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors, registered on the default registry.
var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthbot_orders_total",
		Help: "Leg submissions by side and outcome.",
	}, []string{"side", "outcome"})

	GateRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthbot_gate_rejections_total",
		Help: "Pre-trade gate rejections by gate.",
	}, []string{"gate"})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthbot_signals_total",
		Help: "Inbound signals by action and outcome.",
	}, []string{"action", "outcome"})

	PositionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "synthbot_positions_open",
		Help: "Currently persisted positions by status.",
	}, []string{"status"})

	NakedLegsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthbot_naked_legs_total",
		Help: "Entries that left a naked long leg (short leg not placed).",
	})

	RolloversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthbot_rollovers_total",
		Help: "Rollover attempts by outcome.",
	}, []string{"outcome"})

	StoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthbot_store_errors_total",
		Help: "Position store persistence failures.",
	})

	OrderSubmitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synthbot_order_submit_latency_seconds",
		Help:    "Broker order submission latency.",
		Buckets: prometheus.DefBuckets,
	})

	FillWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synthbot_fill_wait_seconds",
		Help:    "Time spent waiting for fill confirmation.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 30},
	})

	HeartbeatTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synthbot_heartbeat_timestamp_seconds",
		Help: "Unix time of the last processed signal.",
	})
)
