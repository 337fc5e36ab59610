package httpserver

import (
	"strconv"
	"time"

	"docportal/internal/audit"
	"docportal/pkg/metrics"
	"docportal/pkg/trace"

	"github.com/gin-gonic/gin"
)

// TraceMiddleware 透传或生成 trace_id，并记录客户端 IP 供审计使用
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(trace.HeaderName))
		ctx := trace.WithContext(c.Request.Context(), traceID)
		ctx = audit.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// MetricsMiddleware 按路由模板记录请求耗时
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
