package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// API surfaces used as the "api" label.
const (
	APIAdmin  = "admin"
	APIAgent  = "agent"
	APISystem = "system"
)

var (
	// HTTPRequests counts requests per API surface, method, route template and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"api", "method", "route", "status"},
	)

	// HTTPRequestDuration measures request latency per route template.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "swarmcp_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
			// change and upgrade wait on provisioning, hence the long tail
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"api", "route"},
	)

	// HTTPInFlight tracks requests being served per API surface.
	HTTPInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmcp_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
		[]string{"api"},
	)
)

var httpCollectors = []prometheus.Collector{HTTPRequests, HTTPRequestDuration, HTTPInFlight}

// APIOf maps a route template to the API surface it belongs to.
func APIOf(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/v1/agent"):
		return APIAgent
	case strings.HasPrefix(route, "/api/v1/"):
		return APIAdmin
	default:
		return APISystem
	}
}
