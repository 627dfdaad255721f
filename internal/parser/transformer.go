package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/domain"
)

// transformerConcept/Relation/Coreference/Gap mirror the wire contract the
// remote inference service returns: loosely typed fields with defaults, since
// the model is an external boundary and must not be trusted to round-trip
// our domain types exactly.
type transformerConcept struct {
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
	Domain        string   `json:"domain"`
	Confidence    float64  `json:"confidence"`
}

type transformerRelation struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

type transformerCoreference struct {
	Mention    string  `json:"mention"`
	ResolvedTo string  `json:"resolved_to"`
	Confidence float64 `json:"confidence"`
}

type transformerGap struct {
	GapType     string `json:"gap_type"`
	Priority    int    `json:"priority"`
	Description string `json:"description"`
}

type transformerParseRequest struct {
	TenantID  string       `json:"tenant_id"`
	SessionID string       `json:"session_id"`
	Turn      domain.Turn  `json:"turn"`
	History   []domain.Turn `json:"history"`
}

type transformerParseResponse struct {
	Concepts     []transformerConcept     `json:"concepts"`
	Relations    []transformerRelation    `json:"relations"`
	Coreferences []transformerCoreference `json:"coreferences"`
	KnowledgeGaps []transformerGap         `json:"knowledge_gaps"`
}

// TransformerBackend calls a remote inference endpoint and maps its output
// into ParseResult, falling back to a HeuristicBackend on any failure
// (connection error, non-2xx, or a response with zero usable concepts).
type TransformerBackend struct {
	inferenceURL string
	httpClient   *http.Client
	fallback     Backend
}

// NewTransformerBackend constructs a transformer-backed parser. fallback
// defaults to a fresh HeuristicBackend if nil.
func NewTransformerBackend(inferenceURL string, timeout time.Duration, fallback Backend) *TransformerBackend {
	if fallback == nil {
		fallback = NewHeuristicBackend()
	}
	return &TransformerBackend{
		inferenceURL: inferenceURL,
		httpClient:   &http.Client{Timeout: timeout},
		fallback:     fallback,
	}
}

// ParseTurn implements Backend.
func (b *TransformerBackend) ParseTurn(ctx context.Context, req domain.ParseTurnRequest) (domain.ParseResult, error) {
	result, err := b.callModel(ctx, req)
	if err != nil {
		return b.fallback.ParseTurn(ctx, req)
	}
	mapped := b.mapModelOutput(req, result)
	if len(mapped.Concepts) == 0 {
		return b.fallback.ParseTurn(ctx, req)
	}
	return mapped, nil
}

func (b *TransformerBackend) callModel(ctx context.Context, req domain.ParseTurnRequest) (transformerParseResponse, error) {
	var out transformerParseResponse

	body, err := json.Marshal(transformerParseRequest{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		Turn:      req.Turn,
		History:   req.History,
	})
	if err != nil {
		return out, fmt.Errorf("failed to marshal transformer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.inferenceURL, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("failed to build transformer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return out, fmt.Errorf("transformer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("transformer returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode transformer response: %w", err)
	}
	return out, nil
}

func (b *TransformerBackend) mapModelOutput(req domain.ParseTurnRequest, extracted transformerParseResponse) domain.ParseResult {
	turnID := req.Turn.TurnID
	var concepts []domain.Concept
	idByName := make(map[string]string)

	for _, item := range extracted.Concepts {
		name := strings.TrimSpace(item.CanonicalName)
		if name == "" {
			continue
		}
		domainName := item.Domain
		if domainName == "" {
			domainName = "general"
		}
		confidence := item.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		concept := domain.Concept{
			NodeID:          ids.New(ids.PrefixNode),
			CanonicalName:   name,
			Aliases:         item.Aliases,
			Domain:          domainName,
			Confidence:      confidence,
			EvidenceTurnIDs: []string{turnID},
		}
		concepts = append(concepts, concept)
		idByName[strings.ToLower(name)] = concept.NodeID
	}

	var relations []domain.Relation
	for _, item := range extracted.Relations {
		srcID, srcOK := idByName[strings.ToLower(strings.TrimSpace(item.Source))]
		dstID, dstOK := idByName[strings.ToLower(strings.TrimSpace(item.Target))]
		if !srcOK || !dstOK {
			continue
		}
		relationType := domain.RelationType(item.RelationType)
		if !isKnownRelationType(relationType) {
			relationType = domain.RelationDefinition
		}
		confidence := item.Confidence
		if confidence == 0 {
			confidence = 0.75
		}
		relations = append(relations, domain.Relation{
			EdgeID:          ids.New(ids.PrefixEdge),
			SourceNodeID:    srcID,
			TargetNodeID:    dstID,
			RelationType:    relationType,
			Confidence:      confidence,
			EvidenceTurnIDs: []string{turnID},
		})
	}

	var coreferences []domain.Coreference
	for _, item := range extracted.Coreferences {
		mention := strings.TrimSpace(item.Mention)
		resolved := strings.TrimSpace(item.ResolvedTo)
		if mention == "" || resolved == "" {
			continue
		}
		coreferences = append(coreferences, domain.Coreference{Mention: mention, ResolvedConcept: resolved})
	}

	var gaps []domain.KnowledgeGap
	for _, item := range extracted.KnowledgeGaps {
		gapType := domain.GapType(item.GapType)
		if !isKnownGapType(gapType) {
			continue
		}
		priority := item.Priority
		if priority == 0 {
			priority = 2
		}
		description := item.Description
		if description == "" {
			description = "Model-signaled knowledge gap."
		}
		gaps = append(gaps, domain.KnowledgeGap{
			GapID:       ids.New(ids.PrefixGap),
			SessionID:   req.SessionID,
			GapType:     gapType,
			Priority:    priority,
			Description: description,
		})
	}

	return domain.ParseResult{Concepts: concepts, Relations: relations, Coreferences: coreferences, Gaps: gaps}
}

func isKnownRelationType(t domain.RelationType) bool {
	switch t {
	case domain.RelationCausal, domain.RelationChronology, domain.RelationContrast,
		domain.RelationDependency, domain.RelationDefinition, domain.RelationExample:
		return true
	default:
		return false
	}
}

func isKnownGapType(t domain.GapType) bool {
	switch t {
	case domain.GapMissingPrerequisite, domain.GapWeakEvidence, domain.GapAmbiguousReference, domain.GapUnresolvedBranch:
		return true
	default:
		return false
	}
}
