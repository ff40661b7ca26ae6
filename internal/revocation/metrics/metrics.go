package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RevokedTotal        prometheus.Counter
	AlreadyRevokedTotal prometheus.Counter
	FailuresTotal       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RevokedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_revocations_total",
			Help: "Total number of credentials revoked",
		}),
		AlreadyRevokedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_revocations_already_revoked_total",
			Help: "Total number of revocation requests against already revoked credentials",
		}),
		FailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_revocation_failures_total",
			Help: "Total number of failed revocation requests by stage",
		}, []string{"stage"}),
	}
}

func (m *Metrics) IncrementRevoked() {
	m.RevokedTotal.Inc()
}

func (m *Metrics) IncrementAlreadyRevoked() {
	m.AlreadyRevokedTotal.Inc()
}

func (m *Metrics) IncrementFailures(stage string) {
	m.FailuresTotal.WithLabelValues(stage).Inc()
}
