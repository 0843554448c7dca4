// Package handlers provides the HTTP handlers of the SwarmCP API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/api/middleware"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	// Error is the error code (e.g. "not_found", "conflict")
	Error string `json:"error"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Fields lists the failing fields of a validation error
	Fields []models.FieldError `json:"fields,omitempty"`

	// RequestID is the unique request ID for tracing
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse wraps the payload of a successful response.
type SuccessResponse struct {
	Data any `json:"data,omitempty"`
}

func respondError(c *gin.Context, statusCode int, errorCode, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: middleware.RequestID(c),
	})
}

func respondSuccess(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, SuccessResponse{Data: data})
}

// mapErrorToResponse converts a service error to an HTTP response.
//
// Domain errors keep their message since it tells the caller what to fix.
// Unknown errors are logged and reported generically.
func mapErrorToResponse(c *gin.Context, err error) {
	var (
		verr      *models.ValidationError
		serr      *models.StateError
		uerr      *models.AlreadyUpgradedError
		merr      *models.MasterUniquenessError
		collabErr *models.CollaboratorError
	)

	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "validation_failed",
			Message:   "Validation failed",
			Fields:    verr.Fields,
			RequestID: middleware.RequestID(c),
		})

	case errors.As(err, &serr):
		respondError(c, http.StatusConflict, "invalid_state", serr.Error())
	case errors.As(err, &uerr):
		respondError(c, http.StatusConflict, "already_upgraded", uerr.Error())
	case errors.As(err, &merr):
		respondError(c, http.StatusConflict, "master_exists", merr.Error())
	case errors.Is(err, models.ErrDuplicateName), errors.Is(err, models.ErrPublicIPTaken),
		errors.Is(err, models.ErrConflict):
		respondError(c, http.StatusConflict, "conflict", err.Error())

	case errors.As(err, &collabErr):
		middleware.GetLogger(c).Error("collaborator failure",
			zap.String("collaborator", collabErr.Collaborator),
			zap.String("operation", collabErr.Op),
			zap.Error(collabErr.Err),
		)
		respondError(c, http.StatusBadGateway, "upstream_error", collabErr.Collaborator+" "+collabErr.Op+" failed")

	case errors.Is(err, models.ErrClusterNotFound):
		respondError(c, http.StatusNotFound, "not_found", "Cluster not found")
	case errors.Is(err, models.ErrNodeNotFound):
		respondError(c, http.StatusNotFound, "not_found", "Node not found")

	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrInvalidToken):
		respondError(c, http.StatusUnauthorized, "unauthorized", "Authentication failed")
	case errors.Is(err, models.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, models.ErrServiceUnavailable), errors.Is(err, models.ErrTokenCollision):
		respondError(c, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable")

	default:
		middleware.GetLogger(c).Error("request failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal_error", "An internal error occurred")
	}
}

// bindJSON decodes the request body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON")
		return false
	}
	return true
}
