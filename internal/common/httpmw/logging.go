package httpmw

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"go.uber.org/zap"
)

// RequestLogger logs HTTP request details after the handler completes. The
// logger is enriched with the request id (set by RequestID) and, once the
// tenant header has been resolved downstream, the tenant id.
func RequestLogger(log *logger.Logger, serverName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}

		scoped := log.WithContext(c.Request.Context())
		if tenantID := c.GetHeader("X-Tenant-ID"); tenantID != "" {
			scoped = scoped.WithTenantID(tenantID)
		}

		fields := []zap.Field{
			zap.String("server", serverName),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", latency.Milliseconds()),
			zap.Int("bytes", size),
		}

		if status >= 500 {
			scoped.Error("http", fields...)
		} else {
			scoped.Debug("http", fields...)
		}
	}
}
