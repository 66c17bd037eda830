package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitExceeded  *prometheus.CounterVec
	OperationsRecorded *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RateLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_ratelimit_exceeded_total",
			Help: "Total number of operations rejected because a counter exceeded its limit",
		}, []string{"kind"}),
		OperationsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_ratelimit_operations_recorded_total",
			Help: "Total number of operations counted toward rate limits",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordExceeded(kind string) {
	m.RateLimitExceeded.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordOperation(kind string) {
	m.OperationsRecorded.WithLabelValues(kind).Inc()
}
