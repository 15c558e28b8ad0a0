package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/llm"
	"go.uber.org/zap"
)

const (
	ReasonValidationUnavailable = "validation unavailable: system error"
	ReasonNotAssessed           = "not assessed"
)

// RewriteOutcome reports how the rewrite pass ended. Final is exactly the
// text that was emitted.
type RewriteOutcome struct {
	Kind OutcomeKind
	// FellBack is set when the draft was emitted unchanged because the
	// supervising call produced nothing usable.
	FellBack bool
	Final    string
	Err      error
}

// ValidateOutcome holds one ValidationResult per active guideline, in
// active order, whatever the Kind.
type ValidateOutcome struct {
	Kind    OutcomeKind
	Results []domain.ValidationResult
	Err     error
}

// Supervisor checks a draft against the active guidelines.
type Supervisor struct {
	llm    domain.LLMClient
	logger *zap.Logger
}

func NewSupervisor(llmClient domain.LLMClient, logger *zap.Logger) *Supervisor {
	return &Supervisor{llm: llmClient, logger: logger}
}

// Rewrite streams the supervised final text through emit. If the supervising
// call fails before producing any text, the draft is emitted unchanged. If it
// fails after text was emitted, the emitted text stands as the final reply.
// An error is returned only when emit itself fails or ctx is cancelled.
func (s *Supervisor) Rewrite(ctx context.Context, draft string, active []domain.Guideline, emit func(string) error) (RewriteOutcome, error) {
	if len(active) == 0 {
		if err := emitNonEmpty(emit, draft); err != nil {
			return RewriteOutcome{}, err
		}
		return RewriteOutcome{Kind: OutcomeOK, Final: draft}, nil
	}

	fallback := func(kind OutcomeKind, cause error) (RewriteOutcome, error) {
		s.logger.Warn("supervision failed, emitting draft unchanged",
			zap.String("outcome", kind.String()),
			zap.Int("active_guidelines", len(active)),
			zap.Error(cause),
		)
		if err := emitNonEmpty(emit, draft); err != nil {
			return RewriteOutcome{}, err
		}
		return RewriteOutcome{Kind: kind, FellBack: true, Final: draft, Err: cause}, nil
	}

	prompt := fmt.Sprintf(llm.SupervisePrompt, AssembleInstructions(active), draft)
	ch, err := s.llm.Stream(ctx, domain.CompletionRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		if ctx.Err() != nil {
			return RewriteOutcome{}, ctx.Err()
		}
		return fallback(OutcomeFailed, err)
	}

	var final strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			if final.Len() == 0 {
				// Drain so the producer can exit before we emit the draft.
				for range ch {
				}
				return fallback(OutcomeFailed, chunk.Err)
			}
			s.logger.Warn("supervision stream broke mid-reply, keeping emitted text",
				zap.Int("emitted_bytes", final.Len()),
				zap.Error(chunk.Err),
			)
			return RewriteOutcome{Kind: OutcomeFailed, Final: final.String(), Err: chunk.Err}, nil
		}
		if chunk.Delta == "" {
			continue
		}
		final.WriteString(chunk.Delta)
		if err := emit(chunk.Delta); err != nil {
			return RewriteOutcome{}, err
		}
	}

	if err := ctx.Err(); err != nil {
		return RewriteOutcome{}, err
	}
	if strings.TrimSpace(final.String()) == "" {
		if final.Len() > 0 {
			// Whitespace already went out; the draft cannot be emitted cleanly.
			return RewriteOutcome{Kind: OutcomeMalformed, Final: final.String(), Err: errMalformedOutput}, nil
		}
		return fallback(OutcomeMalformed, fmt.Errorf("%w: empty rewrite", errMalformedOutput))
	}

	return RewriteOutcome{Kind: OutcomeOK, Final: final.String()}, nil
}

// Validate asks for a per-guideline compliance verdict on the reply. It never
// fails: on error every guideline is reported as not followed.
func (s *Supervisor) Validate(ctx context.Context, reply string, active []domain.Guideline) ValidateOutcome {
	if len(active) == 0 {
		return ValidateOutcome{Kind: OutcomeOK, Results: []domain.ValidationResult{}}
	}

	prompt := fmt.Sprintf(llm.ValidatePrompt, formatGuidelines(active), reply)
	raw, err := s.llm.Complete(ctx, domain.CompletionRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		s.logger.Warn("validation call failed", zap.Int("active_guidelines", len(active)), zap.Error(err))
		return ValidateOutcome{Kind: OutcomeFailed, Results: unavailable(active), Err: err}
	}

	parsed, err := parseValidationResults(raw)
	if err != nil {
		s.logger.Warn("validation returned malformed output",
			zap.String("output", truncate(raw, 500)),
			zap.Error(err),
		)
		return ValidateOutcome{Kind: OutcomeMalformed, Results: unavailable(active), Err: err}
	}

	byID := make(map[string]domain.ValidationResult, len(parsed))
	for _, r := range parsed {
		if _, seen := byID[r.GuidelineID]; !seen {
			byID[r.GuidelineID] = r
		}
	}

	results := make([]domain.ValidationResult, 0, len(active))
	for _, g := range active {
		r, ok := byID[g.ID]
		if !ok {
			r = domain.ValidationResult{GuidelineID: g.ID, Followed: false, Reason: ReasonNotAssessed}
		}
		results = append(results, r)
	}
	return ValidateOutcome{Kind: OutcomeOK, Results: results}
}

func unavailable(active []domain.Guideline) []domain.ValidationResult {
	results := make([]domain.ValidationResult, len(active))
	for i, g := range active {
		results[i] = domain.ValidationResult{GuidelineID: g.ID, Followed: false, Reason: ReasonValidationUnavailable}
	}
	return results
}

func formatGuidelines(guidelines []domain.Guideline) string {
	var b strings.Builder
	for _, g := range guidelines {
		fmt.Fprintf(&b, "- guideline_id: %s\n  action: %s\n", g.ID, g.Action)
	}
	return strings.TrimRight(b.String(), "\n")
}

type rawValidationResult struct {
	GuidelineID flexID `json:"guideline_id"`
	Followed    *bool  `json:"followed"`
	Reason      string `json:"reason"`
}

func parseValidationResults(raw string) ([]domain.ValidationResult, error) {
	items, err := unwrapArray(raw, "validations")
	if err != nil {
		return nil, err
	}

	var entries []rawValidationResult
	if err := json.Unmarshal(items, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedOutput, err)
	}

	results := make([]domain.ValidationResult, 0, len(entries))
	for i, e := range entries {
		if e.GuidelineID == "" || e.Followed == nil {
			return nil, fmt.Errorf("%w: entry %d is missing guideline_id or followed", errMalformedOutput, i)
		}
		results = append(results, domain.ValidationResult{
			GuidelineID: string(e.GuidelineID),
			Followed:    *e.Followed,
			Reason:      e.Reason,
		})
	}
	return results, nil
}

func emitNonEmpty(emit func(string) error, text string) error {
	if text == "" {
		return nil
	}
	return emit(text)
}
