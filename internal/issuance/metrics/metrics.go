package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	IssuedTotal            prometheus.Counter
	DuplicateTotal         prometheus.Counter
	FailuresTotal          *prometheus.CounterVec
	IndexRepairQueuedTotal prometheus.Counter
	IssueDurationSeconds   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		IssuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_issuance_issued_total",
			Help: "Total number of credentials minted on the ledger",
		}),
		DuplicateTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_issuance_duplicate_total",
			Help: "Total number of issue requests resolved by the idempotency key",
		}),
		FailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_issuance_failures_total",
			Help: "Total number of failed issue requests by stage",
		}, []string{"stage"}),
		IndexRepairQueuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_issuance_index_repair_queued_total",
			Help: "Total number of index writes that failed after a successful mint and were queued for repair",
		}),
		IssueDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "attest_issuance_duration_seconds",
			Help: "Duration of issue operations in seconds",
		}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.IssuedTotal.Inc()
}

func (m *Metrics) IncrementDuplicate() {
	m.DuplicateTotal.Inc()
}

func (m *Metrics) IncrementFailures(stage string) {
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncrementIndexRepairQueued() {
	m.IndexRepairQueuedTotal.Inc()
}

func (m *Metrics) ObserveIssueDuration(seconds float64) {
	m.IssueDurationSeconds.Observe(seconds)
}
