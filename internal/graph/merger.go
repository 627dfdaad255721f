// Package graph implements the per-session concept/relation deduplication
// store: the "Graph Merger". Upsert is deterministic and idempotent; replaying
// the same payload converges to the same snapshot beyond counter accounting.
package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/Esoteriker/openTree/internal/domain"
)

// Repository is the Graph Merger's public contract, implemented by an
// in-memory store and a PostgreSQL-backed store.
type Repository interface {
	Upsert(ctx context.Context, tenantID, sessionID string, concepts []domain.Concept, relations []domain.Relation) (domain.GraphUpsertResult, error)
	Snapshot(ctx context.Context, tenantID, sessionID string) (*domain.GraphSnapshot, error)
	IsReady(ctx context.Context) (bool, string)
	Close() error
}

// normalizeKey lowercases and trims a canonical name for use as the
// concept-dedup key. An empty result means the concept must be rejected.
func normalizeKey(canonicalName string) string {
	return strings.ToLower(strings.TrimSpace(canonicalName))
}

func relationDedupKey(sourceNodeID, targetNodeID string, relationType domain.RelationType) string {
	return sourceNodeID + "|" + targetNodeID + "|" + string(relationType)
}

// sortedUniqueStrings returns the sorted, deduplicated union of a and b.
func sortedUniqueStrings(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
