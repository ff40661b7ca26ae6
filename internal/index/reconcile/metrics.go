package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RepairedTotal prometheus.Counter
	DroppedTotal  prometheus.Counter
	FailuresTotal prometheus.Counter
	PassDuration  prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		RepairedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_index_repairs_total",
			Help: "Total number of index records rewritten from ledger truth",
		}),
		DroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_index_repair_dropped_total",
			Help: "Total number of repair queue entries dropped because the ledger has no such token",
		}),
		FailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_index_repair_failures_total",
			Help: "Total number of repair attempts that failed and stayed queued",
		}),
		PassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_index_repair_pass_duration_seconds",
			Help:    "Duration of index repair passes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
