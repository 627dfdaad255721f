package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/auth"
	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/suggestion"
)

func newTestSuggestionRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	resolver := auth.NewResolver(config.AuthConfig{Mode: "none"})
	return NewSuggestionRouter(suggestion.NewEngine(), resolver, logger.Default())
}

func TestSuggestionRouter_RanksGapsIntoQuestions(t *testing.T) {
	router := newTestSuggestionRouter(t)

	rec := doJSON(router, http.MethodPost, "/v1/suggestions/questions", "tenant-a", domain.SuggestionRequest{
		SessionID: "s1",
		Gaps: []domain.KnowledgeGap{
			{GapID: "g1", GapType: domain.GapMissingPrerequisite, Priority: 1, Description: "foundations"},
			{GapID: "g2", GapType: domain.GapAmbiguousReference, Priority: 5, Description: "it"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var response domain.SuggestionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Suggestions, 2)
	require.Equal(t, domain.GapAmbiguousReference, response.Suggestions[0].GapType)
}

func TestSuggestionRouter_NoGapsReturnsDefaultSuggestion(t *testing.T) {
	router := newTestSuggestionRouter(t)

	rec := doJSON(router, http.MethodPost, "/v1/suggestions/questions", "tenant-a", domain.SuggestionRequest{SessionID: "s1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var response domain.SuggestionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Suggestions, 1)
}
