package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_events_published_total",
			Help: "Events handed to the sink successfully",
		}, []string{"type"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_events_dropped_total",
			Help: "Events dropped because the publish buffer was full",
		}, []string{"type"}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_events_failed_total",
			Help: "Events the sink rejected",
		}, []string{"type"}),
	}
}
