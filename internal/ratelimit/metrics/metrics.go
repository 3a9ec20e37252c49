package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_ratelimit_decisions_total",
			Help: "Rate limit checks by endpoint class, key type and decision",
		}, []string{"class", "key", "decision"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "cityrater_ratelimit_store_errors_total",
			Help: "Bucket store failures; requests are let through when these occur",
		}),
	}
}

func (m *Metrics) RecordDecision(class, key string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.Decisions.WithLabelValues(class, key, decision).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}
