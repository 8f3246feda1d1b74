package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HandshakeLimiter 网关级握手限流；r<=0 不限流
func HandshakeLimiter(r float64, burst int, onReject func(reason string)) gin.HandlerFunc {
	if r <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(r) + 1
	}
	lim := rate.NewLimiter(rate.Limit(r), burst)
	return func(c *gin.Context) {
		if !lim.Allow() {
			if onReject != nil {
				onReject("rate_limited")
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
			return
		}
		c.Next()
	}
}
