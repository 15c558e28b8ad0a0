package service

import (
	"strings"
	"testing"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestAssembleInstructions_EmptyUsesFallback(t *testing.T) {
	for _, active := range [][]domain.Guideline{nil, {}, {{ID: "blank", Action: "   "}}} {
		got := AssembleInstructions(active)
		if got != FallbackInstruction {
			t.Errorf("expected fallback instruction, got %q", got)
		}
	}
}

func TestAssembleInstructions_NumberedByPriority(t *testing.T) {
	active := []domain.Guideline{
		{ID: "low", Action: "Offer a discount code.", Priority: 1},
		{ID: "high", Action: "Verify the customer's identity first.", Priority: 10},
		{ID: "mid-a", Action: "Mention the refund policy.", Priority: 5},
		{ID: "mid-b", Action: "Mention the refund policy.", Priority: 5},
	}

	got := AssembleInstructions(active)
	want := strings.Join([]string{
		"1. Verify the customer's identity first.",
		"2. Mention the refund policy.",
		"3. Mention the refund policy.",
		"4. Offer a discount code.",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("instructions mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleInstructions_Deterministic(t *testing.T) {
	active := []domain.Guideline{
		{ID: "a", Action: "Be brief.", Priority: 2},
		{ID: "b", Action: "Use the customer's name.", Priority: 2},
	}

	first := AssembleInstructions(active)
	for i := 0; i < 10; i++ {
		if got := AssembleInstructions(active); got != first {
			t.Fatalf("expected identical output, got %q then %q", first, got)
		}
	}
	if active[0].ID != "a" {
		t.Error("input slice must not be reordered")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	got := BuildSystemPrompt("1. Be brief.")
	if !strings.Contains(got, "1. Be brief.") {
		t.Errorf("expected instructions in system prompt, got %q", got)
	}

	got = BuildSystemPrompt("")
	if !strings.Contains(got, FallbackInstruction) {
		t.Errorf("expected fallback in system prompt, got %q", got)
	}
}
