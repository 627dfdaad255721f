package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/domain"
)

func TestMemoryRepository_DedupsByNormalizedCanonicalName(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "t1", "s1", []domain.Concept{
		{NodeID: "n1", CanonicalName: "Transformers", Aliases: []string{"xfmr"}, Confidence: 0.6},
	}, nil)
	require.NoError(t, err)

	result, err := repo.Upsert(ctx, "t1", "s1", []domain.Concept{
		{NodeID: "n2", CanonicalName: "transformers", Aliases: []string{"TRF"}, Confidence: 0.9},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.MergedNodes)
	require.Equal(t, 0, result.AddedNodes)

	snapshot, err := repo.Snapshot(ctx, "t1", "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Concepts, 1)
	require.Equal(t, []string{"TRF", "xfmr"}, snapshot.Concepts[0].Aliases)
	require.Equal(t, 0.9, snapshot.Concepts[0].Confidence)
}

func TestMemoryRepository_RejectsEmptyCanonicalNameSilently(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	result, err := repo.Upsert(ctx, "t1", "s1", []domain.Concept{
		{NodeID: "n1", CanonicalName: "   "},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.AddedNodes)
	require.Equal(t, 0, result.MergedNodes)
}

func TestMemoryRepository_DropsRelationsWithUnresolvedEndpoints(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	result, err := repo.Upsert(ctx, "t1", "s1",
		[]domain.Concept{{NodeID: "n1", CanonicalName: "A"}},
		[]domain.Relation{{SourceNodeID: "n1", TargetNodeID: "n-missing", RelationType: domain.RelationCausal}},
	)
	require.NoError(t, err)
	require.Equal(t, 0, result.AddedEdges)
	require.Equal(t, 0, result.MergedEdges)
}

func TestMemoryRepository_MergesRelationsByDedupKey(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	concepts := []domain.Concept{
		{NodeID: "n1", CanonicalName: "A"},
		{NodeID: "n2", CanonicalName: "B"},
	}
	relation := domain.Relation{
		EdgeID: "e1", SourceNodeID: "n1", TargetNodeID: "n2",
		RelationType: domain.RelationCausal, Confidence: 0.4, EvidenceTurnIDs: []string{"turn1"},
	}

	result, err := repo.Upsert(ctx, "t1", "s1", concepts, []domain.Relation{relation})
	require.NoError(t, err)
	require.Equal(t, 1, result.AddedEdges)

	relation.Confidence = 0.8
	relation.EvidenceTurnIDs = []string{"turn2"}
	result, err = repo.Upsert(ctx, "t1", "s1", concepts, []domain.Relation{relation})
	require.NoError(t, err)
	require.Equal(t, 1, result.MergedEdges)
	require.Equal(t, 0, result.AddedEdges)

	snapshot, err := repo.Snapshot(ctx, "t1", "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Relations, 1)
	require.Equal(t, 0.8, snapshot.Relations[0].Confidence)
	require.Equal(t, []string{"turn1", "turn2"}, snapshot.Relations[0].EvidenceTurnIDs)
}

func TestMemoryRepository_Idempotency(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	concepts := []domain.Concept{
		{NodeID: "n1", CanonicalName: "A", Confidence: 0.5},
		{NodeID: "n2", CanonicalName: "B", Confidence: 0.5},
	}
	relations := []domain.Relation{
		{EdgeID: "e1", SourceNodeID: "n1", TargetNodeID: "n2", RelationType: domain.RelationCausal, Confidence: 0.5},
	}

	_, err := repo.Upsert(ctx, "t1", "s1", concepts, relations)
	require.NoError(t, err)
	first, err := repo.Snapshot(ctx, "t1", "s1")
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, "t1", "s1", concepts, relations)
	require.NoError(t, err)
	second, err := repo.Snapshot(ctx, "t1", "s1")
	require.NoError(t, err)

	require.ElementsMatch(t, first.Concepts, second.Concepts)
	require.ElementsMatch(t, first.Relations, second.Relations)
}

func TestMemoryRepository_CommutativityOfDisjointPayloads(t *testing.T) {
	p1Concepts := []domain.Concept{{NodeID: "n1", CanonicalName: "A"}}
	p2Concepts := []domain.Concept{{NodeID: "n2", CanonicalName: "B"}}

	repoAB := NewMemoryRepository()
	ctx := context.Background()
	_, err := repoAB.Upsert(ctx, "t1", "s1", p1Concepts, nil)
	require.NoError(t, err)
	_, err = repoAB.Upsert(ctx, "t1", "s1", p2Concepts, nil)
	require.NoError(t, err)
	snapshotAB, err := repoAB.Snapshot(ctx, "t1", "s1")
	require.NoError(t, err)

	repoBA := NewMemoryRepository()
	_, err = repoBA.Upsert(ctx, "t1", "s1", p2Concepts, nil)
	require.NoError(t, err)
	_, err = repoBA.Upsert(ctx, "t1", "s1", p1Concepts, nil)
	require.NoError(t, err)
	snapshotBA, err := repoBA.Snapshot(ctx, "t1", "s1")
	require.NoError(t, err)

	require.ElementsMatch(t, snapshotAB.Concepts, snapshotBA.Concepts)
}

func TestMemoryRepository_SnapshotNilForUnknownScope(t *testing.T) {
	repo := NewMemoryRepository()
	snapshot, err := repo.Snapshot(context.Background(), "t1", "unknown")
	require.NoError(t, err)
	require.Nil(t, snapshot)
}
