package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/community-hub/backend/internal/telemetry"
)

// MetricsMiddleware records http_requests_total and http_request_duration_seconds for
// every request. The path label is the matched route template (e.g. /api/v1/t/:slug/events)
// so tenant slugs and ids never become label values; unmatched requests use "<no-route>".
//
// Register after gin.Recovery() and RequestIDMiddleware so statuses written by error
// handlers are captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
