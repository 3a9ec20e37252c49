package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Resolutions    *prometheus.CounterVec
	AnonymousUsers prometheus.Counter
	RejectedKeys   prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cityrater_identity_resolutions_total",
			Help: "Telegram registrations by transition (restored, linked, created)",
		}, []string{"transition"}),
		AnonymousUsers: f.NewCounter(prometheus.CounterOpts{
			Name: "cityrater_identity_anonymous_users_total",
			Help: "Anonymous users registered on first contact",
		}),
		RejectedKeys: f.NewCounter(prometheus.CounterOpts{
			Name: "cityrater_identity_rejected_keys_total",
			Help: "User keys rejected as neither legacy nor registered",
		}),
	}
}

func (m *Metrics) IncrementResolution(transition string) {
	m.Resolutions.WithLabelValues(transition).Inc()
}

func (m *Metrics) IncrementAnonymousUsers() {
	m.AnonymousUsers.Inc()
}

func (m *Metrics) IncrementRejectedKeys() {
	m.RejectedKeys.Inc()
}
