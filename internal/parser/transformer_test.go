package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/domain"
)

func TestTransformerBackend_MapsModelOutputIntoDomainTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transformerParseResponse{
			Concepts: []transformerConcept{
				{CanonicalName: "Transformers", Domain: "ml", Confidence: 0.9},
				{CanonicalName: "Attention", Confidence: 0.85},
			},
			Relations: []transformerRelation{
				{Source: "Transformers", Target: "Attention", RelationType: "definition", Confidence: 0.7},
			},
		})
	}))
	defer server.Close()

	backend := NewTransformerBackend(server.URL, 2*time.Second, nil)
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "Transformers use Attention."))
	require.NoError(t, err)
	require.Len(t, result.Concepts, 2)
	require.Len(t, result.Relations, 1)
	require.Equal(t, domain.RelationDefinition, result.Relations[0].RelationType)
}

func TestTransformerBackend_FallsBackToHeuristicOnTransportError(t *testing.T) {
	backend := NewTransformerBackend("http://127.0.0.1:0", 100*time.Millisecond, NewHeuristicBackend())
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "Gradient Descent minimizes loss."))
	require.NoError(t, err)
	require.NotEmpty(t, result.Concepts)
}

func TestTransformerBackend_FallsBackToHeuristicOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewTransformerBackend(server.URL, 2*time.Second, NewHeuristicBackend())
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "Gradient Descent minimizes loss."))
	require.NoError(t, err)
	require.NotEmpty(t, result.Concepts)
}

func TestTransformerBackend_FallsBackToHeuristicOnEmptyConceptOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transformerParseResponse{})
	}))
	defer server.Close()

	backend := NewTransformerBackend(server.URL, 2*time.Second, NewHeuristicBackend())
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "Gradient Descent minimizes loss."))
	require.NoError(t, err)
	require.NotEmpty(t, result.Concepts)
}

func TestTransformerBackend_DropsRelationsWithUnknownConceptEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transformerParseResponse{
			Concepts: []transformerConcept{{CanonicalName: "Transformers"}},
			Relations: []transformerRelation{
				{Source: "Transformers", Target: "Unknown", RelationType: "definition"},
			},
		})
	}))
	defer server.Close()

	backend := NewTransformerBackend(server.URL, 2*time.Second, nil)
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "Transformers."))
	require.NoError(t, err)
	require.Len(t, result.Concepts, 1)
	require.Empty(t, result.Relations)
}
