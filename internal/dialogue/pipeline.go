package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/common/constants"
	"github.com/Esoteriker/openTree/internal/domain"
)

// PipelineRunner calls the parser, graph, and suggestion services in sequence
// for one turn. It is an interface so the worker and the synchronous handler
// share one implementation while tests substitute a fake.
type PipelineRunner interface {
	Run(ctx context.Context, tenantID, apiKey string, turn domain.Turn, history []domain.Turn) (domain.DialogueTurnResponse, error)
}

// HTTPPipelineRunner calls the three downstream services over HTTP, the way
// the dialogue service has always reached its collaborators: no shared
// library, no RPC framework, one small JSON request per hop.
type HTTPPipelineRunner struct {
	client        *http.Client
	parserURL     string
	graphURL      string
	suggestionURL string
}

// NewHTTPPipelineRunner builds a runner against the three configured service URLs.
// A non-positive timeout falls back to constants.HTTPClientTimeout.
func NewHTTPPipelineRunner(parserURL, graphURL, suggestionURL string, timeout time.Duration) *HTTPPipelineRunner {
	if timeout <= 0 {
		timeout = constants.HTTPClientTimeout
	}
	return &HTTPPipelineRunner{
		client:        &http.Client{Timeout: timeout},
		parserURL:     parserURL,
		graphURL:      graphURL,
		suggestionURL: suggestionURL,
	}
}

// Run implements PipelineRunner.
func (r *HTTPPipelineRunner) Run(ctx context.Context, tenantID, apiKey string, turn domain.Turn, history []domain.Turn) (domain.DialogueTurnResponse, error) {
	var response domain.DialogueTurnResponse

	var parsed domain.ParseTurnResponse
	if err := r.post(ctx, r.parserURL+"/v1/parse/turn", tenantID, apiKey, domain.ParseTurnRequest{
		TenantID:  tenantID,
		SessionID: turn.SessionID,
		Turn:      turn,
		History:   history,
	}, &parsed); err != nil {
		return response, err
	}

	var graphUpdate domain.GraphUpsertResult
	if err := r.post(ctx, r.graphURL+"/v1/graph/upsert", tenantID, apiKey, domain.GraphUpsertRequest{
		TenantID:  tenantID,
		SessionID: turn.SessionID,
		Concepts:  parsed.Concepts,
		Relations: parsed.Relations,
	}, &graphUpdate); err != nil {
		return response, err
	}

	var suggested domain.SuggestionResponse
	if err := r.post(ctx, r.suggestionURL+"/v1/suggestions/questions", tenantID, apiKey, domain.SuggestionRequest{
		TenantID:  tenantID,
		SessionID: turn.SessionID,
		Gaps:      parsed.Gaps,
	}, &suggested); err != nil {
		return response, err
	}

	return domain.DialogueTurnResponse{
		Turn:        turn,
		ParseResult: parsed.ParseResult,
		GraphUpdate: graphUpdate,
		Suggestions: suggested.Suggestions,
	}, nil
}

// GraphClient fetches a session's deduplicated graph snapshot from the Graph
// service. Separated from PipelineRunner since GetSessionGraph is a read
// path outside the turn-processing pipeline.
type GraphClient interface {
	Snapshot(ctx context.Context, tenantID, apiKey, sessionID string) (domain.GraphSnapshot, error)
}

// HTTPGraphClient implements GraphClient over HTTP.
type HTTPGraphClient struct {
	client   *http.Client
	graphURL string
}

// NewHTTPGraphClient builds a graph client against the configured Graph service
// URL. A non-positive timeout falls back to constants.HTTPClientTimeout.
func NewHTTPGraphClient(graphURL string, timeout time.Duration) *HTTPGraphClient {
	if timeout <= 0 {
		timeout = constants.HTTPClientTimeout
	}
	return &HTTPGraphClient{client: &http.Client{Timeout: timeout}, graphURL: graphURL}
}

// Snapshot implements GraphClient.
func (c *HTTPGraphClient) Snapshot(ctx context.Context, tenantID, apiKey, sessionID string) (domain.GraphSnapshot, error) {
	var snapshot domain.GraphSnapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.graphURL+"/v1/graph/"+sessionID, nil)
	if err != nil {
		return snapshot, apperrors.InternalError("failed to build graph request", err)
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return snapshot, apperrors.Transient("graph service request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return snapshot, apperrors.NotFound("graph", sessionID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return snapshot, apperrors.Transient(fmt.Sprintf("graph service returned status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return snapshot, apperrors.Transient("failed to decode graph snapshot", err)
	}
	return snapshot, nil
}

func (r *HTTPPipelineRunner) post(ctx context.Context, url, tenantID, apiKey string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.InternalError("failed to marshal downstream request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.InternalError("failed to build downstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return apperrors.Transient(fmt.Sprintf("downstream call to %s failed", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Transient(fmt.Sprintf("downstream call to %s returned status %d", url, resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transient(fmt.Sprintf("failed to decode response from %s", url), err)
	}
	return nil
}
