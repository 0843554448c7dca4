package middleware

import (
	"github.com/gin-gonic/gin"
	"swarmcp.io/models"
)

// Keys of the values the middleware stores on the gin context.
const (
	// ContextKeyTenantID stores the tenant the admin request acts for.
	ContextKeyTenantID = "tenant_id"

	// ContextKeyNode stores the node authenticated by its agent token.
	ContextKeyNode = "node"

	// ContextKeyRequestID stores the unique request ID for tracing.
	ContextKeyRequestID = "request_id"

	// ContextKeyLogger stores the request-scoped logger.
	ContextKeyLogger = "logger"
)

// TenantID returns the authenticated tenant, or "" outside admin routes.
func TenantID(c *gin.Context) string {
	return c.GetString(ContextKeyTenantID)
}

// Node returns the node authenticated by RequireNodeToken, or nil.
func Node(c *gin.Context) *models.Node {
	if val, exists := c.Get(ContextKeyNode); exists {
		if n, ok := val.(*models.Node); ok {
			return n
		}
	}
	return nil
}

// RequestID returns the request ID set by RequestLogger.
func RequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
