package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinSim/internal/domain/models"
	"FinSim/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	simulations  *prometheus.CounterVec
	signals      *prometheus.CounterVec
	trades       *prometheus.CounterVec
	breakerTrips *prometheus.CounterVec
	barsStored   *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	finalEquity  *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		simulations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsim_simulations_total",
				Help: "Total number of simulation runs by final status",
			},
			[]string{"strategy", "status"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsim_signals_total",
				Help: "Signals accepted by the strategy engine",
			},
			[]string{"strategy", "side"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsim_trades_total",
				Help: "Simulated trades by outcome",
			},
			[]string{"outcome"},
		),
		breakerTrips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsim_breaker_trips_total",
				Help: "Circuit breaker trips by limit kind",
			},
			[]string{"limit"},
		),
		barsStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsim_bars_stored_total",
				Help: "Bars written to the bar store",
			},
			[]string{"interval", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsim_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		finalEquity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsim_last_final_equity",
				Help: "Final equity of the most recent simulation per symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsim_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSimulation(strategy, status string) {
	r.simulations.WithLabelValues(strategy, status).Inc()
}

func (r *Recorder) RecordSignal(strategy string, side models.Side) {
	r.signals.WithLabelValues(strategy, string(side)).Inc()
}

func (r *Recorder) RecordTrade(outcome models.Outcome) {
	r.trades.WithLabelValues(string(outcome)).Inc()
}

// RecordBreakerTrip labels the trip by the limit named at the start of reason.
func (r *Recorder) RecordBreakerTrip(reason string) {
	r.breakerTrips.WithLabelValues(limitKind(reason)).Inc()
}

func (r *Recorder) RecordBarsStored(tf repository.Timeframe, source string, n int) {
	r.barsStored.WithLabelValues(string(tf), source).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordFinalEquity(symbol string, equity float64) {
	r.finalEquity.WithLabelValues(symbol).Set(equity)
}

func limitKind(reason string) string {
	switch {
	case len(reason) >= 5 && reason[:5] == "Daily":
		return "daily_losses"
	case len(reason) >= 8 && reason[:8] == "Intraday":
		return "daily_drawdown"
	case len(reason) >= 7 && reason[:7] == "Monthly":
		return "monthly_drawdown"
	}
	return "other"
}
