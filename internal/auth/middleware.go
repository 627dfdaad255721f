package auth

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
)

const tenantContextKey = "tenant_context"

// Middleware resolves the tenant from request headers and aborts the request
// with the resolver's error on failure. Handlers retrieve the result with
// FromContext.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantCtx, err := resolver.Resolve(
			c.GetHeader("X-Tenant-ID"),
			c.GetHeader("X-API-Key"),
			c.GetHeader("Authorization"),
		)
		if err != nil {
			status := apperrors.GetHTTPStatus(err)
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Set(tenantContextKey, tenantCtx)
		c.Next()
	}
}

// FromContext retrieves the TenantContext set by Middleware. Panics if called
// from a handler not wrapped by Middleware, since that is a wiring bug.
func FromContext(c *gin.Context) TenantContext {
	value, ok := c.Get(tenantContextKey)
	if !ok {
		panic("auth.FromContext: no tenant context set; is auth.Middleware wired?")
	}
	return value.(TenantContext)
}
