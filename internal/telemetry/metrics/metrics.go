// Package metrics exposes the execution core's runtime counters through
// Prometheus, following the reference codebase's promauto-vec-per-concern
// layout (one package-level var block of CounterVec/HistogramVec/GaugeVec,
// registered at import time).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantcore_orders_submitted_total",
			Help: "Total number of orders submitted to an exchange adapter",
		},
		[]string{"exchange", "symbol", "side"},
	)

	ordersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantcore_orders_failed_total",
			Help: "Total number of order submissions that failed",
		},
		[]string{"exchange", "symbol", "reason"},
	)

	ordersRejectedByRisk = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantcore_orders_risk_rejected_total",
			Help: "Total number of orders rejected by the pre-trade risk gate",
		},
		[]string{"symbol", "reason"},
	)

	orderSubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantcore_order_submit_duration_seconds",
			Help:    "Time spent in the exchange adapter's SubmitOrder call made by Router.SubmitOrder",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"exchange"},
	)

	tradeVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantcore_trade_volume_total",
			Help: "Cumulative traded volume in base units",
		},
		[]string{"symbol", "side"},
	)

	positionSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quantcore_position_size",
			Help: "Current signed position size per symbol",
		},
		[]string{"symbol"},
	)

	balanceTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quantcore_balance_total",
			Help: "Current account balance",
		},
		[]string{"asset"},
	)

	winRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantcore_backtest_win_rate",
			Help: "Win rate (0-1) of the most recently completed backtest run",
		},
	)

	sharpeRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantcore_backtest_sharpe_ratio",
			Help: "Sharpe ratio of the most recently completed backtest run",
		},
	)

	ringQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantcore_eventbus_queue_depth",
			Help: "Number of events currently buffered in the event processor's ring",
		},
	)

	ringDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quantcore_eventbus_dropped_total",
			Help: "Total number of events dropped because the ring stayed full past the retry budget",
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantcore_process_cpu_percent",
			Help: "CPU usage percent of the quantcore process",
		},
	)

	processMemoryMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantcore_process_memory_mb",
			Help: "Resident memory usage of the quantcore process in megabytes",
		},
	)

	processMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantcore_process_memory_percent",
			Help: "Resident memory usage of the quantcore process as a percent of total system memory",
		},
	)
)

// RecordOrderSubmitted increments the submitted-orders counter.
func RecordOrderSubmitted(exchange, symbol, side string) {
	ordersSubmitted.WithLabelValues(exchange, symbol, side).Inc()
}

// RecordOrderFailed increments the failed-orders counter with a reason label.
func RecordOrderFailed(exchange, symbol, reason string) {
	ordersFailed.WithLabelValues(exchange, symbol, reason).Inc()
}

// RecordRiskRejection increments the risk-rejection counter.
func RecordRiskRejection(symbol, reason string) {
	ordersRejectedByRisk.WithLabelValues(symbol, reason).Inc()
}

// ObserveOrderSubmitDuration records how long a SubmitOrder call took.
func ObserveOrderSubmitDuration(exchange string, seconds float64) {
	orderSubmitDuration.WithLabelValues(exchange).Observe(seconds)
}

// RecordTrade adds to the trade-volume counter; the position gauge is set
// separately by SetPosition.
func RecordTrade(symbol, side string, volume float64) {
	tradeVolume.WithLabelValues(symbol, side).Add(volume)
}

// SetPosition sets the current signed position gauge for a symbol.
func SetPosition(symbol string, size float64) {
	positionSize.WithLabelValues(symbol).Set(size)
}

// SetBalance sets the current balance gauge for an asset.
func SetBalance(asset string, total float64) {
	balanceTotal.WithLabelValues(asset).Set(total)
}

// SetBacktestSummary publishes the win rate and Sharpe ratio of a completed
// backtest run.
func SetBacktestSummary(winRateValue, sharpe float64) {
	winRate.Set(winRateValue)
	sharpeRatio.Set(sharpe)
}

// SetRingQueueDepth publishes the event processor's current queue depth.
func SetRingQueueDepth(depth int) {
	ringQueueDepth.Set(float64(depth))
}

// AddRingDropped increments the dropped-event counter by n.
func AddRingDropped(n int) {
	ringDropped.Add(float64(n))
}

// SetProcessStats publishes a sysmon.Sample's process resource readings.
func SetProcessStats(cpuPercent, memoryMB, memoryPercent float64) {
	processCPUPercent.Set(cpuPercent)
	processMemoryMB.Set(memoryMB)
	processMemoryPercent.Set(memoryPercent)
}
