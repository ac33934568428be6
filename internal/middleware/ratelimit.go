package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/ratelimit"
	"github.com/doorlist/backend/pkg/response"
)

// RateLimit rejects requests over the per-IP quota for a route scope.
// Limiter errors allow the request through; the failure is logged, not
// surfaced.
func RateLimit(limiter ratelimit.Limiter, scope string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		ok, retryAfter, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("scope", scope), zap.Error(err))
			}
			c.Next()
			return
		}
		if !ok {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			response.TooManyRequests(c, seconds, "too many requests, try again shortly")
			c.Abort()
			return
		}
		c.Next()
	}
}
