package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Esoteriker/openTree/internal/auth"
	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/common/httpmw"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/dialogue"
	"github.com/Esoteriker/openTree/internal/domain"
)

// DialogueReadiness reports the dialogue service's downstream health checks:
// the parser/graph/suggestion services plus the session store, job store,
// and event bus it owns directly.
type DialogueReadiness struct {
	ParserURL         string
	GraphURL          string
	SuggestionURL     string
	SessionStoreCheck func() (bool, string)
	JobStoreCheck     func() (bool, string)
	EventBusCheck     func() (bool, string)
}

func (r DialogueReadiness) run() map[string]CheckResult {
	checks := map[string]CheckResult{
		"parser_service":     CheckHTTPHealth(r.ParserURL + "/health"),
		"graph_service":      CheckHTTPHealth(r.GraphURL + "/health"),
		"suggestion_service": CheckHTTPHealth(r.SuggestionURL + "/health"),
	}
	if ok, detail := r.SessionStoreCheck(); true {
		checks["session_store"] = CheckResult{OK: ok, Detail: detail}
	}
	if ok, detail := r.JobStoreCheck(); true {
		checks["job_store"] = CheckResult{OK: ok, Detail: detail}
	}
	if ok, detail := r.EventBusCheck(); true {
		checks["event_bus"] = CheckResult{OK: ok, Detail: detail}
	}
	return checks
}

// NewDialogueRouter builds the Dialogue service's gin engine.
func NewDialogueRouter(svc *dialogue.Service, resolver *auth.Resolver, log *logger.Logger, asyncEnabled bool, readiness DialogueReadiness) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpmw.RequestID(), httpmw.RequestLogger(log, "dialogue"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"service":             "dialogue",
			"async_pipeline_enabled": asyncEnabled,
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, SummarizeChecks(readiness.run()))
	})

	v1 := router.Group("/v1")
	v1.Use(auth.Middleware(resolver))

	v1.POST("/sessions", func(c *gin.Context) {
		var req domain.SessionCreateRequest
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
		session, err := svc.CreateSession(c.Request.Context(), tenantCtx.TenantID, req.UserID, req.Metadata)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	})

	v1.GET("/sessions/:sessionId/turns", func(c *gin.Context) {
		tenantCtx := auth.FromContext(c)
		turns, err := svc.ListTurns(c.Request.Context(), tenantCtx.TenantID, c.Param("sessionId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, turns)
	})

	v1.POST("/sessions/:sessionId/turns", func(c *gin.Context) {
		var payload domain.TurnCreate
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeError(c, apperrors.BadRequest(err.Error()))
			return
		}
		tenantCtx := auth.FromContext(c)
		response, err := svc.AddTurnSync(c.Request.Context(), tenantCtx.TenantID, c.Param("sessionId"), tenantCtx.APIKey, payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response)
	})

	v1.POST("/sessions/:sessionId/turns/async", func(c *gin.Context) {
		var payload domain.TurnCreate
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeError(c, apperrors.BadRequest(err.Error()))
			return
		}
		tenantCtx := auth.FromContext(c)
		accepted, err := svc.AddTurnAsync(c.Request.Context(), tenantCtx.TenantID, c.Param("sessionId"), tenantCtx.APIKey, payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, accepted)
	})

	v1.GET("/pipeline/jobs/:jobId", func(c *gin.Context) {
		tenantCtx := auth.FromContext(c)
		job, err := svc.GetJob(c.Request.Context(), tenantCtx.TenantID, c.Param("jobId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	})

	v1.GET("/sessions/:sessionId/context-path", func(c *gin.Context) {
		tenantCtx := auth.FromContext(c)
		path, err := svc.GetContextPath(c.Request.Context(), tenantCtx.TenantID, c.Param("sessionId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": c.Param("sessionId"), "path": path})
	})

	v1.GET("/sessions/:sessionId/graph", func(c *gin.Context) {
		tenantCtx := auth.FromContext(c)
		snapshot, err := svc.GetSessionGraph(c.Request.Context(), tenantCtx.TenantID, tenantCtx.APIKey, c.Param("sessionId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})

	return router
}

func writeError(c *gin.Context, err error) {
	status := apperrors.GetHTTPStatus(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
