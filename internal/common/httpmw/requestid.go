package httpmw

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/common/logger"
)

// RequestIDHeader is the header carrying the per-request correlation id, both
// accepted from upstream and echoed back on the response.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request id to every inbound request: it trusts an
// upstream-supplied X-Request-ID if present, otherwise mints one, stores it
// in the gin context under "request_id" and in the request's context.Context
// under logger.RequestIDKey (so logger.WithContext can pick it up downstream
// of gin), and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = ids.New("req")
		}
		c.Set("request_id", id)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}
