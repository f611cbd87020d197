package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
)

const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// RequestID echoes the caller's X-Request-Id, or mints one, and adds it to
// the log fields of the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}

		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{RequestID: &reqID})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
