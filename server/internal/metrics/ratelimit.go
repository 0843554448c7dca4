package metrics

import "github.com/prometheus/client_golang/prometheus"

// Rate limit results.
const (
	RateLimitAllowed = "allowed"
	RateLimitLimited = "limited"
)

var (
	// RateLimitDecisions counts limiter decisions per limiter (ip, node)
	// and result.
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcp_ratelimit_decisions_total",
			Help: "Rate limiter decisions by limiter and result",
		},
		[]string{"limiter", "result"},
	)

	// RateLimitBuckets is the number of live per-key buckets of a limiter.
	RateLimitBuckets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmcp_ratelimit_buckets",
			Help: "Live per-key token buckets of a rate limiter",
		},
		[]string{"limiter"},
	)
)

var rateLimitCollectors = []prometheus.Collector{RateLimitDecisions, RateLimitBuckets}

// ObserveRateLimit records one decision of limiter and its current bucket count.
func ObserveRateLimit(limiter string, allowed bool, buckets int) {
	result := RateLimitLimited
	if allowed {
		result = RateLimitAllowed
	}
	RateLimitDecisions.WithLabelValues(limiter, result).Inc()
	RateLimitBuckets.WithLabelValues(limiter).Set(float64(buckets))
}
