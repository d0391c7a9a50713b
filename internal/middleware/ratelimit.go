package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studio-booking-api/internal/ratelimit"
)

// RateLimitHeaders writes the X-RateLimit-* set, plus Retry-After when the
// request was rejected.
func RateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		c.Header("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	}
}

// TooManyRequests aborts with 429 and the retry hint in the body.
func TooManyRequests(c *gin.Context, d ratelimit.Decision, msg string) {
	RateLimitHeaders(c, d)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":      msg,
		"retryAfter": d.RetryAfterSeconds(),
	})
}

// RateLimitByIP throttles unauthenticated endpoints such as login.
func RateLimitByIP(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Take("ip:" + c.ClientIP())
		if !d.Allowed {
			TooManyRequests(c, d, "too many requests")
			return
		}
		RateLimitHeaders(c, d)
		c.Next()
	}
}
