package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/pkg/metrics"
)

// Metrics observes per-request latency labelled by method, route template
// and status. Unmatched requests fall back to the raw URL path so 404 noise
// stays visible without exploding label cardinality for real routes.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" {
			// Scrapes would otherwise dominate the histogram.
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
