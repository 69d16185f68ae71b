package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway HTTP collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to stay hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paygw",
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Gateway HTTP requests by gateway, method and status.",
		}, []string{"gateway", "method", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paygw",
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Gateway HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway", "method"}),
	}
}
