package httpapi

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/Esoteriker/openTree/internal/auth"
	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/common/httpmw"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/parser"
)

// NewParserRouter builds the Parser service's gin engine.
func NewParserRouter(backend parser.Backend, resolver *auth.Resolver, log *logger.Logger, backendName, transformerURL string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpmw.RequestID(), httpmw.RequestLogger(log, "parser"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "parser", "backend": backendName})
	})

	router.GET("/ready", func(c *gin.Context) {
		checks := map[string]CheckResult{}
		if backendName == "transformer" {
			if transformerURL == "" {
				checks["transformer_backend"] = CheckResult{OK: false, Detail: "parser.transformerUrl is required for transformer backend"}
			} else {
				checks["transformer_backend"] = CheckHTTPHealth(transformerHealthURL(transformerURL))
			}
		} else {
			checks["heuristic_backend"] = CheckResult{OK: true, Detail: "heuristic backend ready"}
		}
		c.JSON(http.StatusOK, SummarizeChecks(checks))
	})

	v1 := router.Group("/v1")
	v1.Use(auth.Middleware(resolver))

	v1.POST("/parse/turn", func(c *gin.Context) {
		var req domain.ParseTurnRequest
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

		result, err := backend.ParseTurn(c.Request.Context(), req)
		if err != nil {
			writeError(c, apperrors.Transient("parse failed", err))
			return
		}
		c.JSON(http.StatusOK, domain.ParseTurnResponse{ParseResult: result})
	})

	return router
}

func transformerHealthURL(inferenceURL string) string {
	parsed, err := url.Parse(inferenceURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return inferenceURL
	}
	parsed.Path = "/health"
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
