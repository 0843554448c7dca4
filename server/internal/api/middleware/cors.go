package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// CORS creates a middleware that handles Cross-Origin Resource Sharing.
//
// Browser dashboards call the admin API from another origin. The middleware
// echoes an allowed origin back and answers preflight requests itself, so
// they never reach the auth middleware. Requests from other origins pass
// through without CORS headers and the browser blocks the response.
//
// Parameters:
//   - allowOrigins: Allowed origins (e.g., ["https://console.swarmcp.io"])
//     Use ["*"] to allow any origin
//
// Returns:
//   - Gin middleware handler function
func CORS(allowOrigins []string) gin.HandlerFunc {
	allowAll := slices.Contains(allowOrigins, "*")

	return func(c *gin.Context) {
		// Same-origin and non-browser clients send no Origin
		origin := c.GetHeader("Origin")
		if origin == "" || (!allowAll && !slices.Contains(allowOrigins, origin)) {
			c.Next()
			return
		}

		// The echoed origin varies per request, caches must key on it
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+HeaderTenant+", "+HeaderNodeToken)
		c.Header("Access-Control-Max-Age", "86400") // 24 hours

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
