package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	VotesTotal          *prometheus.CounterVec
	BulkSize            *prometheus.HistogramVec
	OperationDuration   *prometheus.HistogramVec
	InvariantViolations *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_votes_total",
			Help: "Vote mutations by entity kind and outcome",
		}, []string{"kind", "outcome"}),
		BulkSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cityrater_vote_bulk_entities",
			Help:    "Distinct entity ids per bulk change request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"kind"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cityrater_vote_operation_duration_seconds",
			Help:    "Vote engine operation latency including transaction retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"operation"}),
		InvariantViolations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_aggregate_invariant_violations_total",
			Help: "Aggregate decrements that would have gone below zero",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementVotes(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.VotesTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

func (m *Metrics) ObserveBulkSize(kind string, n int) {
	m.BulkSize.WithLabelValues(kind).Observe(float64(n))
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementInvariantViolations(kind string) {
	m.InvariantViolations.WithLabelValues(kind).Inc()
}
