package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"swarmcp.io/models"
	"swarmcp.io/pkg/token"
	"swarmcp.io/server/internal/logging"
)

const (
	// HeaderTenant names the tenant an admin request acts for.
	HeaderTenant = "X-SwarmCP-Tenant"

	// HeaderNodeToken carries the agent token of a node.
	HeaderNodeToken = "X-SwarmCP-Node-Token"
)

// NodeAuthenticator resolves the node owning an agent token.
type NodeAuthenticator interface {
	Authenticate(ctx context.Context, tok string) (*models.Node, error)
}

// respondAuthError sends a generic 401 so tokens cannot be enumerated.
func respondAuthError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": "Authentication failed",
	})
}

// RequireAdminToken creates a middleware that authenticates the user API.
//
// The request must carry "Authorization: Bearer <admin token>" and name its
// tenant in the X-SwarmCP-Tenant header. The token is compared in constant
// time. The tenant is stored on the context and added to the request logger.
//
// Parameters:
//   - adminToken: Configured admin token. An empty token rejects every request
//
// Returns:
//   - Gin middleware handler function
func RequireAdminToken(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || adminToken == "" || !token.Equal(provided, adminToken) {
			respondAuthError(c)
			return
		}

		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": HeaderTenant + " header is required",
			})
			return
		}

		c.Set(ContextKeyTenantID, tenantID)
		addLoggerFields(c, zap.String(logging.FieldTenantID, tenantID))
		c.Next()
	}
}

// RequireNodeToken creates a middleware that authenticates the agent API.
//
// The X-SwarmCP-Node-Token header must hold a token of plausible length that
// resolves to a node. The node is stored on the context and its IDs are added
// to the request logger. Unknown and malformed tokens get the same 401.
//
// Parameters:
//   - auth: Resolves a token to its node (the node service)
//
// Returns:
//   - Gin middleware handler function
func RequireNodeToken(auth NodeAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderNodeToken)
		if provided == "" || token.ValidateLength(provided) != nil {
			respondAuthError(c)
			return
		}

		n, err := auth.Authenticate(c.Request.Context(), provided)
		switch {
		case errors.Is(err, models.ErrInvalidToken), errors.Is(err, models.ErrUnauthorized):
			respondAuthError(c)
			return
		case err != nil:
			GetLogger(c).Error("node authentication failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "An internal error occurred",
			})
			return
		}

		c.Set(ContextKeyNode, n)
		addLoggerFields(c,
			zap.String(logging.FieldClusterID, n.ClusterID),
			zap.String(logging.FieldNodeID, n.ID),
		)
		c.Next()
	}
}
