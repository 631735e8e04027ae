package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the saga-level Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sagas         *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stepLatency   *prometheus.HistogramVec
	compensations *prometheus.CounterVec
}

// NewMetrics registers the saga collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sagas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradewind",
			Name:      "sagas_total",
			Help:      "Finished saga runs by outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradewind",
			Name:      "saga_steps_total",
			Help:      "Forward saga steps by step and status.",
		}, []string{"step", "status"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tradewind",
			Name:      "saga_step_duration_ms",
			Help:      "Remote call latency per forward step in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"step"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradewind",
			Name:      "saga_compensations_total",
			Help:      "Compensation attempts by step and status.",
		}, []string{"step", "status"}),
	}
	reg.MustRegister(m.sagas, m.steps, m.stepLatency, m.compensations)
	return m
}

// SagaFinished counts one finished run.
func (m *Metrics) SagaFinished(success bool) {
	if m == nil {
		return
	}
	m.sagas.WithLabelValues(outcomeLabel(success)).Inc()
}

// StepFinished counts one forward step and observes its latency.
func (m *Metrics) StepFinished(step string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, statusLabel(err)).Inc()
	m.stepLatency.WithLabelValues(step).Observe(float64(dur.Milliseconds()))
}

// CompensationFinished counts one compensation attempt.
func (m *Metrics) CompensationFinished(step string, err error) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(step, statusLabel(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func outcomeLabel(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}
