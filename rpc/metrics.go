package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-call counters and latency for the transport.
type Metrics struct {
	calls   *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewMetrics registers the transport metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_rpc_calls_total",
			Help: "RPC calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "punchclock_rpc_latency_seconds",
			Help:    "RPC round-trip latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.calls, m.latency)
	return m
}

func (m *Metrics) observe(endpoint string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.calls.WithLabelValues(endpoint, outcome).Inc()
	m.latency.Observe(elapsed.Seconds())
}
