package graph

import (
	"context"

	"github.com/Esoteriker/openTree/internal/domain"
)

// MemoryRepository holds the deduplicated per-scope graph in process memory.
type MemoryRepository struct {
	scopes *scopeTable
}

// NewMemoryRepository constructs an empty in-memory graph repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{scopes: newScopeTable()}
}

func scopeKey(tenantID, sessionID string) string {
	return tenantID + ":" + sessionID
}

// Upsert runs the deterministic merge algorithm under the scope's exclusive lock.
func (r *MemoryRepository) Upsert(_ context.Context, tenantID, sessionID string, concepts []domain.Concept, relations []domain.Relation) (domain.GraphUpsertResult, error) {
	state := r.scopes.get(scopeKey(tenantID, sessionID))
	state.lock.Lock()
	defer state.lock.Unlock()

	var result domain.GraphUpsertResult
	idMap := make(map[string]string, len(concepts))

	for _, c := range concepts {
		normKey := normalizeKey(c.CanonicalName)
		if normKey == "" {
			continue
		}
		if existing, found := state.concepts[normKey]; found {
			existing.Aliases = sortedUniqueStrings(existing.Aliases, c.Aliases)
			existing.EvidenceTurnIDs = sortedUniqueStrings(existing.EvidenceTurnIDs, c.EvidenceTurnIDs)
			existing.Confidence = maxFloat(existing.Confidence, c.Confidence)
			idMap[c.NodeID] = existing.NodeID
			result.MergedNodes++
		} else {
			stored := c
			state.concepts[normKey] = &stored
			idMap[c.NodeID] = c.NodeID
			result.AddedNodes++
		}
	}

	for _, rel := range relations {
		srcID, srcOK := idMap[rel.SourceNodeID]
		dstID, dstOK := idMap[rel.TargetNodeID]
		if !srcOK || !dstOK {
			continue
		}

		rel.SourceNodeID = srcID
		rel.TargetNodeID = dstID
		dedupKey := relationDedupKey(srcID, dstID, rel.RelationType)
		if existing, found := state.relations[dedupKey]; found {
			existing.Confidence = maxFloat(existing.Confidence, rel.Confidence)
			existing.EvidenceTurnIDs = sortedUniqueStrings(existing.EvidenceTurnIDs, rel.EvidenceTurnIDs)
			result.MergedEdges++
		} else {
			stored := rel
			state.relations[dedupKey] = &stored
			result.AddedEdges++
		}
	}

	return result, nil
}

// Snapshot returns a copied view of the scope's graph, or nil if the scope
// holds no concepts and no relations.
func (r *MemoryRepository) Snapshot(_ context.Context, tenantID, sessionID string) (*domain.GraphSnapshot, error) {
	key := scopeKey(tenantID, sessionID)
	state := r.scopes.get(key)
	state.lock.RLock()
	defer state.lock.RUnlock()

	if len(state.concepts) == 0 && len(state.relations) == 0 {
		return nil, nil
	}

	concepts := make([]domain.Concept, 0, len(state.concepts))
	for _, c := range state.concepts {
		concepts = append(concepts, *c)
	}
	relations := make([]domain.Relation, 0, len(state.relations))
	for _, rel := range state.relations {
		relations = append(relations, *rel)
	}

	return &domain.GraphSnapshot{Concepts: concepts, Relations: relations}, nil
}

// IsReady is always true: there is no external connection to lose.
func (r *MemoryRepository) IsReady(_ context.Context) (bool, string) {
	return true, "memory graph repository ready"
}

// Close is a no-op for the in-memory backend.
func (r *MemoryRepository) Close() error { return nil }
