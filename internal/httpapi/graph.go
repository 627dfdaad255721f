package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Esoteriker/openTree/internal/auth"
	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/common/httpmw"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/graph"
)

// NewGraphRouter builds the Graph service's gin engine.
func NewGraphRouter(repo graph.Repository, resolver *auth.Resolver, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpmw.RequestID(), httpmw.RequestLogger(log, "graph"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "graph"})
	})
	router.GET("/ready", func(c *gin.Context) {
		ok, detail := repo.IsReady(c.Request.Context())
		c.JSON(http.StatusOK, SummarizeChecks(map[string]CheckResult{
			"graph_repository": {OK: ok, Detail: detail},
		}))
	})

	v1 := router.Group("/v1")
	v1.Use(auth.Middleware(resolver))

	v1.POST("/graph/upsert", func(c *gin.Context) {
		var req domain.GraphUpsertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.BadRequest(err.Error()))
			return
		}
		tenantCtx := auth.FromContext(c)
		if req.TenantID != "" {
			if err := auth.EnsureTenantAccess(req.TenantID, tenantCtx); err != nil {
				writeError(c, err)
				return
			}
		}
		req.TenantID = tenantCtx.TenantID

		result, err := repo.Upsert(c.Request.Context(), req.TenantID, req.SessionID, req.Concepts, req.Relations)
		if err != nil {
			writeError(c, apperrors.InternalError("graph upsert failed", err))
			return
		}
		c.JSON(http.StatusOK, result)
	})

	v1.GET("/graph/:sessionId", func(c *gin.Context) {
		tenantCtx := auth.FromContext(c)
		snapshot, err := repo.Snapshot(c.Request.Context(), tenantCtx.TenantID, c.Param("sessionId"))
		if err != nil {
			writeError(c, apperrors.InternalError("graph snapshot failed", err))
			return
		}
		if snapshot == nil {
			writeError(c, apperrors.NotFound("session graph", c.Param("sessionId")))
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})

	return router
}
