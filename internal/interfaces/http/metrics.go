package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry holds all Prometheus metrics for EquityRun. It
// implements the engine's Recorder interface so the step loop stays
// decoupled from Prometheus.
type MetricsRegistry struct {
	registry *prometheus.Registry

	StepDuration *prometheus.HistogramVec
	StepSymbols  prometheus.Gauge

	OrdersFilled   *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec

	Equity prometheus.Gauge

	RegimeSwitches *prometheus.CounterVec
}

// NewMetricsRegistry creates and registers all EquityRun metrics
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equityrun_step_duration_seconds",
				Help:    "Duration of each engine step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"result"},
		),

		StepSymbols: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_step_symbols",
				Help: "Number of symbols processed in the last step",
			},
		),

		OrdersFilled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_orders_filled_total",
				Help: "Total filled orders by symbol and side",
			},
			[]string{"symbol", "side"},
		),

		OrdersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_orders_rejected_total",
				Help: "Total rejected orders by symbol",
			},
			[]string{"symbol"},
		),

		Equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_equity",
				Help: "Current account equity",
			},
		),

		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_regime_switches_total",
				Help: "Regime transitions observed per symbol and regime",
			},
			[]string{"symbol", "regime"},
		),
	}

	m.registry.MustRegister(
		m.StepDuration, m.StepSymbols,
		m.OrdersFilled, m.OrdersRejected,
		m.Equity, m.RegimeSwitches,
	)
	return m
}

// Registry exposes the underlying Prometheus registry for the HTTP handler
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.registry
}

// StepCompleted implements engine.Recorder
func (m *MetricsRegistry) StepCompleted(duration time.Duration, symbols int) {
	m.StepDuration.WithLabelValues("ok").Observe(duration.Seconds())
	m.StepSymbols.Set(float64(symbols))
}

// OrderFilled implements engine.Recorder
func (m *MetricsRegistry) OrderFilled(symbol, side string) {
	m.OrdersFilled.WithLabelValues(symbol, side).Inc()
}

// OrderRejected implements engine.Recorder
func (m *MetricsRegistry) OrderRejected(symbol, reason string) {
	m.OrdersRejected.WithLabelValues(symbol).Inc()
}

// EquityUpdated implements engine.Recorder
func (m *MetricsRegistry) EquityUpdated(equity float64) {
	m.Equity.Set(equity)
}

// RegimeObserved implements engine.Recorder
func (m *MetricsRegistry) RegimeObserved(symbol, regimeName string) {
	m.RegimeSwitches.WithLabelValues(symbol, regimeName).Inc()
}
