package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CandidateQuery describes one state-aware similarity search.
type CandidateQuery struct {
	Embedding     []float32
	ExcludeIDs    []string
	MinSimilarity float32
	Limit         int
}

type GuidelineStore interface {
	Upsert(ctx context.Context, g *Guideline) error
	GetByID(ctx context.Context, id string) (*Guideline, error)
	List(ctx context.Context) ([]Guideline, error)
	FindCandidates(ctx context.Context, q CandidateQuery) ([]MatchCandidate, error)
	ListMissingEmbedding(ctx context.Context, limit int) ([]Guideline, error)
	// SetEmbedding stores embedding only if the guideline's condition still
	// equals condition. It reports false when the guideline is gone or its
	// condition changed after the embedding was computed.
	SetEmbedding(ctx context.Context, id, condition string, embedding []float32) (bool, error)
}

// SessionStore persists conversation sessions. Update is a compare-and-swap
// on Version: it fails with store.ErrVersionConflict when the stored version
// differs from s.Version, and bumps s.Version on success.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*ConversationSession, error)
	Create(ctx context.Context, s *ConversationSession) error
	Update(ctx context.Context, s *ConversationSession) error
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionRequest is a provider-agnostic chat completion call.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSON asks the provider for a JSON-only response where supported.
	JSON bool
}

// LLMClient is the completion service. Stream returns an error when the
// upstream call fails before any text is produced; later failures arrive as
// a StreamChunk with Err set. The channel is closed when the reply ends or
// ctx is cancelled.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// TurnCompleted is published after a turn's state has been persisted.
type TurnCompleted struct {
	SessionID            uuid.UUID       `json:"session_id"`
	ActiveGuidelineIDs   []string        `json:"active_guideline_ids"`
	NewlyAccomplishedIDs []string        `json:"newly_accomplished_ids"`
	Mode                 SupervisionMode `json:"mode"`
	OccurredAt           time.Time       `json:"occurred_at"`
}

type EventPublisher interface {
	PublishTurnCompleted(ctx context.Context, e TurnCompleted) error
}
