package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_ranking_cache_hits_total",
			Help: "Ranking reads served from the cache",
		}, []string{"kind"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_ranking_cache_misses_total",
			Help: "Ranking reads that recomputed from aggregates",
		}, []string{"kind"}),
		CacheInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_ranking_cache_invalidations_total",
			Help: "Ranking cache invalidations after committed votes",
		}, []string{"kind"}),
	}
}
