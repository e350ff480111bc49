package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ApplyHeaders writes the standard X-RateLimit response headers from a
// decision. Called on every admitted request so clients can pace themselves.
func ApplyHeaders(c *gin.Context, d *Decision) {
	if d == nil {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// Deny writes the 429 response for a denial decision, including Retry-After.
func Deny(c *gin.Context, d *Decision) {
	ApplyHeaders(c, d)
	c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate_limit_exceeded",
		"message":     "Quota exceeded for the current window. Slow down and retry.",
		"window":      d.Window,
		"retry_after": d.RetryAfter,
	})
}
