package parser

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/domain"
)

var (
	phrasePattern = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+`)
	tokenPattern  = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_\-]{2,}`)
	pronounPattern = regexp.MustCompile(`(?i)\b(this|that|it|they|these|those)\b`)

	stopWords = map[string]struct{}{
		"what": {}, "when": {}, "where": {}, "which": {}, "with": {},
		"that": {}, "this": {}, "from": {}, "into": {},
	}
)

const sessionMemoryLimit = 50

// HeuristicBackend extracts concepts/relations/coreferences/gaps by regex
// matching and marker scanning, with no external calls. Marker detection uses
// literal substring matching — not word-boundary regex — matching the
// reference implementation exactly so a marker embedded inside a longer word
// ("becausework") still counts; this is intentional, not a bug to fix.
type HeuristicBackend struct {
	mu     sync.Mutex
	memory map[string][]string // scopeKey -> last N concept names, most recent last
}

// NewHeuristicBackend constructs a heuristic parser with empty session memory.
func NewHeuristicBackend() *HeuristicBackend {
	return &HeuristicBackend{memory: make(map[string][]string)}
}

func memoryKey(tenantID, sessionID string) string {
	return tenantID + ":" + sessionID
}

// ParseTurn implements Backend.
func (b *HeuristicBackend) ParseTurn(_ context.Context, req domain.ParseTurnRequest) (domain.ParseResult, error) {
	text := req.Turn.Content
	turnID := req.Turn.TurnID

	concepts := b.extractConcepts(text, turnID)
	relations := b.extractRelations(text, concepts, turnID)
	coreferences := b.resolveCoreferences(req.TenantID, req.SessionID, text)
	gaps := b.buildGaps(req.SessionID, text, concepts, coreferences)

	if len(concepts) > 0 {
		names := make([]string, len(concepts))
		for i, c := range concepts {
			names[i] = c.CanonicalName
		}
		b.rememberConcepts(req.TenantID, req.SessionID, names)
	}

	return domain.ParseResult{
		Concepts:     concepts,
		Relations:    relations,
		Coreferences: coreferences,
		Gaps:         gaps,
	}, nil
}

func (b *HeuristicBackend) extractConcepts(text, turnID string) []domain.Concept {
	var concepts []domain.Concept
	seen := make(map[string]struct{})

	for _, phrase := range phrasePattern.FindAllString(text, -1) {
		key := strings.ToLower(phrase)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		concepts = append(concepts, domain.Concept{
			NodeID:          ids.New(ids.PrefixNode),
			CanonicalName:   phrase,
			Confidence:      0.72,
			EvidenceTurnIDs: []string{turnID},
		})
	}

	for _, token := range tokenPattern.FindAllString(text, -1) {
		low := strings.ToLower(token)
		if _, ok := seen[low]; ok {
			continue
		}
		if _, stop := stopWords[low]; stop {
			continue
		}
		if len(low) < 5 {
			continue
		}
		seen[low] = struct{}{}
		concepts = append(concepts, domain.Concept{
			NodeID:          ids.New(ids.PrefixNode),
			CanonicalName:   token,
			Confidence:      0.58,
			EvidenceTurnIDs: []string{turnID},
		})
	}

	return concepts
}

func (b *HeuristicBackend) extractRelations(text string, concepts []domain.Concept, turnID string) []domain.Relation {
	if len(concepts) < 2 {
		return nil
	}

	textLow := strings.ToLower(text)
	var relationType domain.RelationType
	switch {
	case strings.Contains(textLow, "because") || strings.Contains(textLow, "leads to") || strings.Contains(textLow, "causes"):
		relationType = domain.RelationCausal
	case strings.Contains(textLow, "before") || strings.Contains(textLow, "after") || strings.Contains(textLow, "then"):
		relationType = domain.RelationChronology
	case strings.Contains(textLow, "however") || strings.Contains(textLow, "while") || strings.Contains(textLow, "in contrast"):
		relationType = domain.RelationContrast
	case strings.Contains(textLow, "depends on") || strings.Contains(textLow, "require"):
		relationType = domain.RelationDependency
	case strings.Contains(textLow, "is") || strings.Contains(textLow, "means"):
		relationType = domain.RelationDefinition
	default:
		return nil
	}

	src, dst := concepts[0], concepts[1]
	return []domain.Relation{{
		EdgeID:          ids.New(ids.PrefixEdge),
		SourceNodeID:    src.NodeID,
		TargetNodeID:    dst.NodeID,
		RelationType:    relationType,
		Confidence:      0.6,
		EvidenceTurnIDs: []string{turnID},
	}}
}

func (b *HeuristicBackend) resolveCoreferences(tenantID, sessionID, text string) []domain.Coreference {
	mentions := pronounPattern.FindAllString(text, -1)
	if len(mentions) == 0 {
		return nil
	}

	b.mu.Lock()
	memory := b.memory[memoryKey(tenantID, sessionID)]
	b.mu.Unlock()
	if len(memory) == 0 {
		return nil
	}

	antecedent := memory[len(memory)-1]
	coreferences := make([]domain.Coreference, 0, len(mentions))
	for _, mention := range mentions {
		coreferences = append(coreferences, domain.Coreference{
			Mention:         strings.ToLower(mention),
			ResolvedConcept: antecedent,
		})
	}
	return coreferences
}

func (b *HeuristicBackend) buildGaps(sessionID, text string, concepts []domain.Concept, coreferences []domain.Coreference) []domain.KnowledgeGap {
	var gaps []domain.KnowledgeGap
	textLow := strings.ToLower(text)

	if pronounPattern.MatchString(text) && len(coreferences) == 0 {
		gaps = append(gaps, domain.KnowledgeGap{
			GapID:       ids.New(ids.PrefixGap),
			SessionID:   sessionID,
			GapType:     domain.GapAmbiguousReference,
			Priority:    3,
			Description: "Pronoun reference is unresolved in current context.",
		})
	}

	if strings.Contains(text, "?") && len(concepts) <= 1 {
		gaps = append(gaps, domain.KnowledgeGap{
			GapID:       ids.New(ids.PrefixGap),
			SessionID:   sessionID,
			GapType:     domain.GapMissingPrerequisite,
			Priority:    2,
			Description: "Question appears underspecified; prerequisite concepts are missing.",
		})
	}

	if len(concepts) >= 3 && !strings.Contains(textLow, "because") && strings.Contains(textLow, "why") {
		gaps = append(gaps, domain.KnowledgeGap{
			GapID:       ids.New(ids.PrefixGap),
			SessionID:   sessionID,
			GapType:     domain.GapWeakEvidence,
			Priority:    1,
			Description: "Claim includes multiple concepts but little explicit evidence linkage.",
		})
	}

	return gaps
}

func (b *HeuristicBackend) rememberConcepts(tenantID, sessionID string, names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := memoryKey(tenantID, sessionID)
	memory := append(b.memory[key], names...)
	if len(memory) > sessionMemoryLimit {
		memory = memory[len(memory)-sessionMemoryLimit:]
	}
	b.memory[key] = memory
}
