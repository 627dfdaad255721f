package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Esoteriker/openTree/internal/auth"
	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/common/httpmw"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/suggestion"
)

// NewSuggestionRouter builds the Suggestion service's gin engine.
func NewSuggestionRouter(engine *suggestion.Engine, resolver *auth.Resolver, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpmw.RequestID(), httpmw.RequestLogger(log, "suggestion"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "suggestion"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, SummarizeChecks(map[string]CheckResult{}))
	})

	v1 := router.Group("/v1")
	v1.Use(auth.Middleware(resolver))

	v1.POST("/suggestions/questions", func(c *gin.Context) {
		var req domain.SuggestionRequest
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
		suggestions := engine.Suggest(req.Gaps)
		c.JSON(http.StatusOK, domain.SuggestionResponse{Suggestions: suggestions})
	})

	return router
}
