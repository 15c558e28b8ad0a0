package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/llm"
)

// FallbackInstruction is used when no guideline applies to the turn.
const FallbackInstruction = "No specific guideline applies to this reply. Respond helpfully and naturally to the user's latest message."

// AssembleInstructions renders the active guidelines' actions as a numbered
// list in priority order. Equal priorities keep their incoming order.
// Actions are not deduplicated or reconciled.
func AssembleInstructions(active []domain.Guideline) string {
	ordered := make([]domain.Guideline, 0, len(active))
	for _, g := range active {
		if strings.TrimSpace(g.Action) != "" {
			ordered = append(ordered, g)
		}
	}
	if len(ordered) == 0 {
		return FallbackInstruction
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var b strings.Builder
	for i, g := range ordered {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, strings.TrimSpace(g.Action))
	}
	return b.String()
}

// BuildSystemPrompt wraps an instruction block for draft generation.
func BuildSystemPrompt(instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		instructions = FallbackInstruction
	}
	return fmt.Sprintf(llm.ResponseSystemPrompt, instructions)
}
