package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"swarmcp.io/server/internal/metrics"
)

// idleLimiterTTL is how long an unused bucket is kept.
const idleLimiterTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
// Idle buckets are swept on access, so no background goroutine is needed.
type RateLimiter struct {
	name      string
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per key
// with bursts of up to burst requests. name labels its metrics.
func NewRateLimiter(name string, rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		name:    name,
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether a request from key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > idleLimiterTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) > idleLimiterTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	tracked := len(rl.buckets)
	rl.mu.Unlock()

	metrics.ObserveRateLimit(rl.name, allowed, tracked)
	return allowed
}

// Handler returns a middleware limiting requests by the key keyFn extracts.
// Requests with an empty key are not limited.
func (rl *RateLimiter) Handler(keyFn func(*gin.Context) string) gin.HandlerFunc {
	retryAfter := "1"
	if rl.rate > 0 && rl.rate < 1 {
		retryAfter = strconv.Itoa(int(1/float64(rl.rate)) + 1)
	}

	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" || rl.Allow(key) {
			c.Next()
			return
		}
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":      "rate_limit_exceeded",
			"message":    "Rate limit exceeded",
			"request_id": RequestID(c),
		})
	}
}

// RateLimitByIP creates a middleware that limits requests per client IP.
//
// Parameters:
//   - rps: Sustained requests per second per IP
//   - burst: Requests allowed above the sustained rate
//
// Returns:
//   - Gin middleware handler function
func RateLimitByIP(rps float64, burst int) gin.HandlerFunc {
	return NewRateLimiter("ip", rps, burst).Handler(func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RateLimitByNode creates a middleware that limits requests per authenticated
// node. It must run after RequireNodeToken. Requests without a node pass.
//
// Parameters:
//   - rps: Sustained requests per second per node
//   - burst: Requests allowed above the sustained rate
//
// Returns:
//   - Gin middleware handler function
func RateLimitByNode(rps float64, burst int) gin.HandlerFunc {
	return NewRateLimiter("node", rps, burst).Handler(func(c *gin.Context) string {
		if n := Node(c); n != nil {
			return n.ID
		}
		return ""
	})
}
