package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionIDKey = "sessionId"

// SessionContext records the session id addressed by the request, taken from the
// :sessionId route param or the X-Session-Id header, for logging and rate limiting.
func SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("sessionId"))
		if id == "" {
			id = strings.TrimSpace(c.GetHeader("X-Session-Id"))
		}
		if id != "" {
			c.Set(sessionIDKey, id)
		}
		c.Next()
	}
}

// SessionIDFromContext returns the session id stored by SessionContext or a handler.
func SessionIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(sessionIDKey)
}
