package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/auth"
	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/parser"
)

func newTestParserRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	resolver := auth.NewResolver(config.AuthConfig{Mode: "none"})
	return NewParserRouter(parser.NewHeuristicBackend(), resolver, logger.Default(), "heuristic", "")
}

func TestParserRouter_ReadyReportsHeuristicBackend(t *testing.T) {
	router := newTestParserRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["ready"])
}

func TestParserRouter_ParseTurnReturnsConcepts(t *testing.T) {
	router := newTestParserRouter(t)

	rec := doJSON(router, http.MethodPost, "/v1/parse/turn", "tenant-a", domain.ParseTurnRequest{
		SessionID: "s1",
		Turn: domain.Turn{
			TurnID:  "t1",
			Speaker: domain.SpeakerUser,
			Content: "Photosynthesis converts sunlight into energy.",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var response domain.ParseTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotEmpty(t, response.Concepts)
}

func TestParserRouter_TransformerModeWithoutURLReportsNotReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := auth.NewResolver(config.AuthConfig{Mode: "none"})
	router := NewParserRouter(parser.NewHeuristicBackend(), resolver, logger.Default(), "transformer", "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["ready"])
}
