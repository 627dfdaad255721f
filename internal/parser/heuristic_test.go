package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/domain"
)

func parseReq(tenantID, sessionID, turnID, content string) domain.ParseTurnRequest {
	return domain.ParseTurnRequest{
		TenantID:  tenantID,
		SessionID: sessionID,
		Turn: domain.Turn{
			TenantID:  tenantID,
			SessionID: sessionID,
			TurnID:    turnID,
			Speaker:   domain.SpeakerUser,
			Content:   content,
		},
	}
}

func TestHeuristicBackend_ExtractsPhraseAndTokenConcepts(t *testing.T) {
	backend := NewHeuristicBackend()
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1",
		"Gradient Descent optimizes the loss function because errors propagate."))
	require.NoError(t, err)
	require.NotEmpty(t, result.Concepts)

	var names []string
	for _, c := range result.Concepts {
		names = append(names, c.CanonicalName)
	}
	require.Contains(t, names, "Gradient Descent")
}

func TestHeuristicBackend_MarkerMatchingIsLiteralSubstringNotWordBoundary(t *testing.T) {
	backend := NewHeuristicBackend()
	concepts := []domain.Concept{
		{NodeID: "n1", CanonicalName: "Widget"},
		{NodeID: "n2", CanonicalName: "Gadget"},
	}

	// The documented example: "this is a test" classifies as definition.
	relations := backend.extractRelations("This is a test", concepts, "turn1")
	require.Len(t, relations, 1)
	require.Equal(t, domain.RelationDefinition, relations[0].RelationType)

	// "Thistles grow wild" has no marker as a whole word; only "is" inside
	// "thistles" matches, so a definition relation here shows that matching
	// ignores word boundaries.
	relations = backend.extractRelations("Thistles grow wild", concepts, "turn1")
	require.Len(t, relations, 1)
	require.Equal(t, domain.RelationDefinition, relations[0].RelationType)
}

func TestHeuristicBackend_NoRelationWithFewerThanTwoConcepts(t *testing.T) {
	backend := NewHeuristicBackend()
	relations := backend.extractRelations("because", []domain.Concept{{NodeID: "n1", CanonicalName: "A"}}, "turn1")
	require.Nil(t, relations)
}

func TestHeuristicBackend_ResolvesCoreferenceFromSessionMemory(t *testing.T) {
	backend := NewHeuristicBackend()
	ctx := context.Background()

	_, err := backend.ParseTurn(ctx, parseReq("t1", "s1", "turn1", "Gradient Descent minimizes loss."))
	require.NoError(t, err)

	result, err := backend.ParseTurn(ctx, parseReq("t1", "s1", "turn2", "How does it work?"))
	require.NoError(t, err)
	require.NotEmpty(t, result.Coreferences)
	require.Equal(t, "it", result.Coreferences[0].Mention)
	// Turn 1 remembers "Gradient Descent", then the tokens "Gradient",
	// "Descent" and "minimizes"; the pronoun resolves to the most recent one.
	require.Equal(t, "minimizes", result.Coreferences[0].ResolvedConcept)
}

func TestHeuristicBackend_NoCoreferenceGapWhenNoPronounPresent(t *testing.T) {
	backend := NewHeuristicBackend()
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "Gradient Descent minimizes loss."))
	require.NoError(t, err)
	for _, gap := range result.Gaps {
		require.NotEqual(t, domain.GapAmbiguousReference, gap.GapType)
	}
}

func TestHeuristicBackend_AmbiguousReferenceGapWhenPronounUnresolved(t *testing.T) {
	backend := NewHeuristicBackend()
	result, err := backend.ParseTurn(context.Background(), parseReq("t1", "s1", "turn1", "What does it mean?"))
	require.NoError(t, err)

	found := false
	for _, gap := range result.Gaps {
		if gap.GapType == domain.GapAmbiguousReference {
			found = true
		}
	}
	require.True(t, found)
}

func TestHeuristicBackend_SessionMemoryIsCappedAndScopedPerTenantSession(t *testing.T) {
	backend := NewHeuristicBackend()
	ctx := context.Background()

	for i := 0; i < sessionMemoryLimit+10; i++ {
		_, err := backend.ParseTurn(ctx, parseReq("t1", "s1", "turnX", "Neural Network trains weights."))
		require.NoError(t, err)
	}
	backend.mu.Lock()
	length := len(backend.memory[memoryKey("t1", "s1")])
	backend.mu.Unlock()
	require.LessOrEqual(t, length, sessionMemoryLimit)

	backend.mu.Lock()
	_, otherScopeExists := backend.memory[memoryKey("t2", "s1")]
	backend.mu.Unlock()
	require.False(t, otherScopeExists)
}
