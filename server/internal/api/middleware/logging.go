// Package middleware provides the HTTP middleware of the SwarmCP API:
// authentication, rate limiting, request logging, metrics and CORS.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"swarmcp.io/server/internal/logging"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestLogger assigns a request ID, stores a request-scoped logger on the
// gin and request contexts, and logs each completed request at a level
// matching its status.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		start := time.Now()

		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
		addLoggerFields(c,
			zap.String(logging.FieldRequestID, requestID),
			zap.String(logging.FieldMethod, c.Request.Method),
			zap.String(logging.FieldPath, c.Request.URL.Path),
			zap.String(logging.FieldRemoteAddr, c.ClientIP()),
		)

		c.Next()

		// auth middleware may have added fields
		requestLogger := GetLogger(c)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int(logging.FieldStatusCode, status),
			zap.Int64(logging.FieldDuration, time.Since(start).Milliseconds()),
			zap.String(logging.FieldUserAgent, c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String(logging.FieldError, c.Errors.String()))
		}

		switch {
		case status >= 500:
			requestLogger.Error("request completed with server error", fields...)
		case status >= 400:
			requestLogger.Warn("request completed with client error", fields...)
		default:
			requestLogger.Debug("request completed", fields...)
		}
	}
}

// GetLogger returns the request-scoped logger, or a no-op logger.
func GetLogger(c *gin.Context) *zap.Logger {
	if val, exists := c.Get(ContextKeyLogger); exists {
		if l, ok := val.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}

// addLoggerFields extends the request logger. The request context and the gin
// context hold the same logger, so services logging through the request
// context see the fields too.
func addLoggerFields(c *gin.Context, fields ...zap.Field) {
	ctx := logging.AddFields(c.Request.Context(), fields...)
	c.Request = c.Request.WithContext(ctx)
	c.Set(ContextKeyLogger, logging.FromContext(ctx))
}
