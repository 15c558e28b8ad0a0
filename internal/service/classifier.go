package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/llm"
	"go.uber.org/zap"
)

// DefaultHistoryTurns is how many messages before the latest user message
// the classifier sees.
const DefaultHistoryTurns = 3

// OutcomeKind tags the result of an LLM-backed judgment.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	// OutcomeMalformed means the model answered but the answer could not be
	// used.
	OutcomeMalformed
	// OutcomeFailed means the model call itself errored.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var errMalformedOutput = errors.New("malformed model output")

// ClassifyOutcome holds one MatchResult per candidate, in candidate order,
// when Kind is OutcomeOK. Otherwise Results is empty and Err says why.
type ClassifyOutcome struct {
	Kind    OutcomeKind
	Results []domain.MatchResult
	Err     error
}

// Active returns the candidates whose result applies, in candidate order.
func (o ClassifyOutcome) Active(candidates []domain.MatchCandidate) []domain.Guideline {
	if o.Kind != OutcomeOK {
		return nil
	}
	applies := make(map[string]bool, len(o.Results))
	for _, r := range o.Results {
		applies[r.GuidelineID] = r.Applies
	}

	var active []domain.Guideline
	for _, c := range candidates {
		if applies[c.ID] {
			active = append(active, c.Guideline)
		}
	}
	return active
}

// Classifier decides which retrieved candidates apply to the next reply
// using a single batched LLM call.
type Classifier struct {
	llm          domain.LLMClient
	historyTurns int
	logger       *zap.Logger
}

func NewClassifier(llmClient domain.LLMClient, historyTurns int, logger *zap.Logger) *Classifier {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Classifier{
		llm:          llmClient,
		historyTurns: historyTurns,
		logger:       logger,
	}
}

// Classify judges every candidate against the latest user message and the
// recent history. It never returns an error: failures are reported through
// the outcome kind and mean no guideline applies.
func (c *Classifier) Classify(ctx context.Context, candidates []domain.MatchCandidate, userMessage string, history []domain.Message) ClassifyOutcome {
	if len(candidates) == 0 {
		return ClassifyOutcome{Kind: OutcomeOK, Results: []domain.MatchResult{}}
	}

	prompt := fmt.Sprintf(llm.MatchGuidelinesPrompt,
		formatHistory(recentHistory(history, c.historyTurns)),
		userMessage,
		formatCandidates(candidates),
	)

	raw, err := c.llm.Complete(ctx, domain.CompletionRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		c.logger.Warn("guideline classification failed", zap.Int("candidates", len(candidates)), zap.Error(err))
		return ClassifyOutcome{Kind: OutcomeFailed, Err: err}
	}

	parsed, err := parseMatchResults(raw)
	if err != nil {
		c.logger.Warn("guideline classification returned malformed output",
			zap.Int("candidates", len(candidates)),
			zap.String("output", truncate(raw, 500)),
			zap.Error(err),
		)
		return ClassifyOutcome{Kind: OutcomeMalformed, Err: err}
	}

	byID := make(map[string]domain.MatchResult, len(parsed))
	for _, r := range parsed {
		if _, seen := byID[r.GuidelineID]; !seen {
			byID[r.GuidelineID] = r
		}
	}

	results := make([]domain.MatchResult, 0, len(candidates))
	for _, cand := range candidates {
		r, ok := byID[cand.ID]
		if !ok {
			results = append(results, domain.MatchResult{GuidelineID: cand.ID, Reason: "not assessed"})
			continue
		}
		r.Score = domain.ClampScore(r.Score)
		results = append(results, r)
	}

	return ClassifyOutcome{Kind: OutcomeOK, Results: results}
}

// recentHistory returns the last n messages before the final user message.
func recentHistory(messages []domain.Message, n int) []domain.Message {
	end := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			end = i
			break
		}
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return messages[start:end]
}

func formatHistory(messages []domain.Message) string {
	if len(messages) == 0 {
		return "(no earlier messages)"
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCandidates(candidates []domain.MatchCandidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "- guideline_id: %s\n  condition: %s\n  action: %s\n", c.ID, c.Condition, c.Action)
	}
	return strings.TrimRight(b.String(), "\n")
}

// flexID accepts a guideline id written as a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("guideline_id must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}

type rawMatchResult struct {
	GuidelineID flexID  `json:"guideline_id"`
	Applies     *bool   `json:"applies"`
	Score       float32 `json:"score"`
	Reason      string  `json:"reason"`
}

// parseMatchResults accepts {"results":[...]} or a bare array. Entries
// without an id or an applies flag make the whole output malformed.
func parseMatchResults(raw string) ([]domain.MatchResult, error) {
	items, err := unwrapArray(raw, "results")
	if err != nil {
		return nil, err
	}

	var entries []rawMatchResult
	if err := json.Unmarshal(items, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedOutput, err)
	}

	results := make([]domain.MatchResult, 0, len(entries))
	for i, e := range entries {
		if e.GuidelineID == "" || e.Applies == nil {
			return nil, fmt.Errorf("%w: entry %d is missing guideline_id or applies", errMalformedOutput, i)
		}
		results = append(results, domain.MatchResult{
			GuidelineID: string(e.GuidelineID),
			Applies:     *e.Applies,
			Score:       e.Score,
			Reason:      e.Reason,
		})
	}
	return results, nil
}

// unwrapArray returns the JSON array found either at the top level of raw or
// under key in a top-level object.
func unwrapArray(raw, key string) (json.RawMessage, error) {
	data := bytes.TrimSpace([]byte(llm.StripFences(raw)))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty output", errMalformedOutput)
	}

	switch data[0] {
	case '[':
		return data, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedOutput, err)
		}
		arr, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", errMalformedOutput, key)
		}
		arr = bytes.TrimSpace(arr)
		if len(arr) == 0 || arr[0] != '[' {
			return nil, fmt.Errorf("%w: %q is not an array", errMalformedOutput, key)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("%w: not JSON", errMalformedOutput)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
