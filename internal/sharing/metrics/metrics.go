package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	MintedTotal   prometheus.Counter
	ResolvedTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		MintedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_share_tokens_minted_total",
			Help: "Total number of share tokens minted",
		}),
		ResolvedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_share_tokens_resolved_total",
			Help: "Total number of share token resolutions by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementMinted() {
	m.MintedTotal.Inc()
}

func (m *Metrics) IncrementResolved(outcome string) {
	m.ResolvedTotal.WithLabelValues(outcome).Inc()
}
