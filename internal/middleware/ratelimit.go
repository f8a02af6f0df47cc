package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// RateLimit limits requests per (clientIP, path) within a fixed window using
// process-local counters. Suitable for single-instance deployments and tests.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return RateLimitWithStore(NewMemoryRateStore(), maxRequests, window)
}

// RateLimitWithStore is RateLimit over a shared RateStore. Backed by Redis
// the window survives restarts and is shared across replicas, which is what
// the login endpoints need to make credential stuffing expensive.
func RateLimitWithStore(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if store == nil {
		store = NewMemoryRateStore()
	}

	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := "rate:" + c.ClientIP() + "|" + c.FullPath()
		count, resetIn, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			// Fail open: throttling must never take the API down with it.
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
