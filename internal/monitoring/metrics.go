package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equity_agent_decisions_total",
			Help: "Total number of evaluation cycles by outcome",
		},
		[]string{"outcome"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equity_agent_rejections_total",
			Help: "Total number of gate rejections by reason",
		},
		[]string{"reason"},
	)

	// Trading metrics
	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equity_agent_fills_total",
			Help: "Total number of settled fills",
		},
		[]string{"symbol", "side"},
	)

	realizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "equity_agent_realized_pnl",
			Help: "Cumulative realized profit and loss",
		},
	)

	// Portfolio metrics
	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "equity_agent_equity",
			Help: "Current portfolio equity",
		},
	)

	lossToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "equity_agent_loss_today",
			Help: "Realized losses accumulated today",
		},
	)

	tradesToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "equity_agent_trades_today",
			Help: "Trades settled today",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "equity_agent_open_positions",
			Help: "Number of open positions",
		},
	)

	// Profile metrics
	activeProfile = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "equity_agent_active_profile",
			Help: "Active risk profile (1 for the active one)",
		},
		[]string{"profile"},
	)

	// Broker metrics
	brokerBreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "equity_agent_broker_breaker_open",
			Help: "Whether the broker circuit breaker is open",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equity_agent_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(equity)
	prometheus.MustRegister(lossToday)
	prometheus.MustRegister(tradesToday)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(activeProfile)
	prometheus.MustRegister(brokerBreakerOpen)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordDecision records an evaluation outcome
func RecordDecision(outcome string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection records a gate rejection
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordFill records a settled fill
func RecordFill(symbol, side string) {
	fillsTotal.WithLabelValues(symbol, side).Inc()
}

// UpdatePortfolio updates the portfolio gauges
func UpdatePortfolio(eq, pnl, loss float64, trades, positions int) {
	equity.Set(eq)
	realizedPnL.Set(pnl)
	lossToday.Set(loss)
	tradesToday.Set(float64(trades))
	openPositions.Set(float64(positions))
}

// UpdateActiveProfile marks the active risk profile
func UpdateActiveProfile(active string, all []string) {
	for _, name := range all {
		v := 0.0
		if name == active {
			v = 1.0
		}
		activeProfile.WithLabelValues(name).Set(v)
	}
}

// UpdateBreakerState updates the broker breaker gauge
func UpdateBreakerState(open bool) {
	if open {
		brokerBreakerOpen.Set(1)
	} else {
		brokerBreakerOpen.Set(0)
	}
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
