package domain

import "time"

// Guideline is a condition -> action behavioral rule. Guidelines are authored
// outside the pipeline and are read-only here.
type Guideline struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Condition string    `json:"condition" yaml:"condition"`
	Action    string    `json:"action" yaml:"action"`
	Priority  int       `json:"priority" yaml:"priority"`
	Category  string    `json:"category,omitempty" yaml:"category"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	Embedding []float32 `json:"-" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// HasEmbedding reports whether the guideline can take part in retrieval.
func (g *Guideline) HasEmbedding() bool {
	return len(g.Embedding) > 0
}

// MatchCandidate is a guideline retrieved for the current turn together with
// the cosine similarity between its condition and the user message.
type MatchCandidate struct {
	Guideline
	Similarity float32 `json:"similarity"`
	// Embedded is set by the store when the similarity was computed against
	// a stored embedding. Candidates without one are never retrieved.
	Embedded bool `json:"-"`
}

// MatchResult is the classifier verdict for one candidate.
type MatchResult struct {
	GuidelineID string  `json:"guideline_id"`
	Applies     bool    `json:"applies"`
	Score       float32 `json:"score"`
	Reason      string  `json:"reason"`
}

// ValidationResult is the supervisor verdict for one active guideline.
type ValidationResult struct {
	GuidelineID string `json:"guideline_id"`
	Followed    bool   `json:"followed"`
	Reason      string `json:"reason"`
}

// Score bounds for MatchResult.Score.
const (
	MinMatchScore float32 = 0
	MaxMatchScore float32 = 10
)

// ClampScore bounds a classifier score to [MinMatchScore, MaxMatchScore].
func ClampScore(s float32) float32 {
	if s < MinMatchScore {
		return MinMatchScore
	}
	if s > MaxMatchScore {
		return MaxMatchScore
	}
	return s
}

// GuidelineIDs returns the ids of the given guidelines in order.
func GuidelineIDs(guidelines []Guideline) []string {
	ids := make([]string, len(guidelines))
	for i, g := range guidelines {
		ids[i] = g.ID
	}
	return ids
}
