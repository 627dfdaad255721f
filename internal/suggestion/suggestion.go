// Package suggestion turns detected knowledge gaps into ranked follow-up
// questions for the dialogue participant.
package suggestion

import (
	"sort"

	"github.com/Esoteriker/openTree/internal/domain"
)

// Engine generates ranked suggestions from a set of knowledge gaps.
type Engine struct{}

// NewEngine constructs a suggestion engine. It holds no state: ranking is a
// pure function of the gaps passed in.
func NewEngine() *Engine {
	return &Engine{}
}

// Suggest ranks gaps by descending priority and maps each to a follow-up
// question. If gaps is empty, a single generic suggestion is returned so the
// caller always has something to show.
func (e *Engine) Suggest(gaps []domain.KnowledgeGap) []domain.Suggestion {
	ranked := make([]domain.KnowledgeGap, len(gaps))
	copy(ranked, gaps)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	suggestions := make([]domain.Suggestion, 0, len(ranked))
	for _, gap := range ranked {
		question, reason := gapToQuestion(gap.GapType, gap.Description)
		suggestions = append(suggestions, domain.Suggestion{
			Question: question,
			Reason:   reason,
			Priority: gap.Priority,
			GapType:  gap.GapType,
		})
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, domain.Suggestion{
			Question: "Would you like to add examples, counterpoints, or prerequisites to this topic?",
			Reason:   "No high-priority gaps were detected.",
			Priority: 1,
		})
	}

	return suggestions
}

func gapToQuestion(gapType domain.GapType, description string) (string, string) {
	switch gapType {
	case domain.GapAmbiguousReference:
		return "Can you clarify exactly which concept your pronoun refers to?", description
	case domain.GapMissingPrerequisite:
		return "What prerequisite concept should we define first before this topic?", description
	case domain.GapWeakEvidence:
		return "What evidence or source best supports this relationship?", description
	default:
		return "Which branch should we expand next to make this knowledge path complete?", description
	}
}
