package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"swarmcp.io/server/internal/metrics"
)

// MetricsMiddleware creates a middleware that collects Prometheus metrics for HTTP requests.
//
// This middleware:
//   - Counts requests by API surface (admin, agent, system), method, route and status
//   - Measures request duration per API surface and route
//   - Tracks in-flight requests per API surface
//
// Routes are recorded by their template (/api/v1/clusters/:cluster_id), never
// the raw path, so cluster and node IDs do not blow up label cardinality.
// Requests that match no route share the "unmatched" route.
//
// The middleware should be added early in the middleware chain to capture
// accurate timing and ensure all requests are counted.
//
// Returns:
//   - Gin middleware handler function
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// The route is known before the handler chain runs
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		api := metrics.APIOf(route)

		// Track in-flight requests
		inFlight := metrics.HTTPInFlight.WithLabelValues(api)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()

		// Process request
		c.Next()

		// Record metrics
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequests.WithLabelValues(api, c.Request.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(api, route).Observe(time.Since(start).Seconds())
	}
}
