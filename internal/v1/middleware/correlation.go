// Package middleware holds Gin middleware for the ops HTTP listener.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/harborchat/harbor/internal/v1/logging"
)

// HeaderXCorrelationID is the header carrying the request correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID propagates the caller's correlation ID, minting one
// when absent. The ID lands in the response header, in the Gin context,
// and in the request context so logging picks it up anywhere downstream.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logging.CorrelationIDKey, correlationID))

		c.Next()
	}
}
