// Package metrics holds the HTTP metrics shared by every voile service and
// the promhttp handler they mount at their metrics path. Per-service domain
// metrics live in each service's own Metrics struct.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request buckets skew low: handlers are ledger writes and Kafka publishes,
// so anything past a second is already an outage signal.
var requestBuckets = []float64{.0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voile_http_requests_total",
			Help: "HTTP requests served, by method, route and status code.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voile_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by method, route and status code.",
			Buckets: requestBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Register adds the shared HTTP collectors to a service registry.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(RequestCount, RequestDuration)
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
