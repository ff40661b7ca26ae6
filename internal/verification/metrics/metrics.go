package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	VerificationsTotal    *prometheus.CounterVec
	QuotaDeniedTotal      prometheus.Counter
	RevocationConflicts   prometheus.Counter
	LedgerFailClosedTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_verification_lookups_total",
			Help: "Total number of verification lookups by outcome",
		}, []string{"outcome"}),
		QuotaDeniedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_verification_quota_denied_total",
			Help: "Total number of lookups rejected because the free quota was exhausted",
		}),
		RevocationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_verification_revocation_conflicts_total",
			Help: "Total number of reads where the index disagreed with the ledger on the revocation bit",
		}),
		LedgerFailClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_verification_ledger_fail_closed_total",
			Help: "Total number of lookups refused because the ledger was unreachable",
		}),
	}
}

func (m *Metrics) IncrementVerifications(outcome string) {
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementQuotaDenied() {
	m.QuotaDeniedTotal.Inc()
}

func (m *Metrics) IncrementRevocationConflicts() {
	m.RevocationConflicts.Inc()
}

func (m *Metrics) IncrementLedgerFailClosed() {
	m.LedgerFailClosedTotal.Inc()
}
