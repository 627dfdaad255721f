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
	"github.com/Esoteriker/openTree/internal/graph"
)

func newTestGraphRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	resolver := auth.NewResolver(config.AuthConfig{Mode: "none"})
	return NewGraphRouter(graph.NewMemoryRepository(), resolver, logger.Default())
}

func TestGraphRouter_UpsertThenFetchSnapshot(t *testing.T) {
	router := newTestGraphRouter(t)

	upsertRec := doJSON(router, http.MethodPost, "/v1/graph/upsert", "tenant-a", domain.GraphUpsertRequest{
		SessionID: "s1",
		Concepts: []domain.Concept{
			{NodeID: "n1", CanonicalName: "Photosynthesis", Confidence: 0.9},
		},
	})
	require.Equal(t, http.StatusOK, upsertRec.Code)
	var result domain.GraphUpsertResult
	require.NoError(t, json.Unmarshal(upsertRec.Body.Bytes(), &result))
	require.Equal(t, 1, result.AddedNodes)

	snapRec := httptest.NewRequest(http.MethodGet, "/v1/graph/s1", nil)
	snapRec.Header.Set("X-Tenant-ID", "tenant-a")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, snapRec)
	require.Equal(t, http.StatusOK, recorder.Code)

	var snapshot domain.GraphSnapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Concepts, 1)
}

func TestGraphRouter_SnapshotForUnknownSessionReturns404(t *testing.T) {
	router := newTestGraphRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/graph/missing", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGraphRouter_TenantMismatchOnUpsertIsForbidden(t *testing.T) {
	router := newTestGraphRouter(t)

	rec := doJSON(router, http.MethodPost, "/v1/graph/upsert", "tenant-a", domain.GraphUpsertRequest{
		TenantID:  "tenant-b",
		SessionID: "s1",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
