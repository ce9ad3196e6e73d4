package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware caps requests per client IP. The provider callback endpoints are
// unauthenticated, so the client IP is the only stable key available.
//
// Fail-open: if redis is unreachable the request proceeds with a logged
// error. A dropped limiter beats hanging up live calls.
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		retryAfter, allowed, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.FromGin(c).Error("rate limiter unavailable", "err", err)
			c.Next()
			return
		}
		if !allowed {
			seconds := int64(retryAfter / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.FormatInt(seconds, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
