package service

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/store"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeGuidelineStore returns Candidates verbatim from FindCandidates, like a
// store that ignores the query filters, so callers must enforce them.
type fakeGuidelineStore struct {
	mu         sync.Mutex
	guidelines map[string]*domain.Guideline
	Candidates []domain.MatchCandidate
	FindErr    error
	Queries    []domain.CandidateQuery
}

func newFakeGuidelineStore() *fakeGuidelineStore {
	return &fakeGuidelineStore{guidelines: make(map[string]*domain.Guideline)}
}

func (s *fakeGuidelineStore) Upsert(_ context.Context, g *domain.Guideline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *g
	if old, ok := s.guidelines[g.ID]; ok && !g.HasEmbedding() && old.Condition == g.Condition {
		cp.Embedding = old.Embedding
	}
	s.guidelines[g.ID] = &cp
	g.Embedding = cp.Embedding
	return nil
}

func (s *fakeGuidelineStore) GetByID(_ context.Context, id string) (*domain.Guideline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guidelines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *fakeGuidelineStore) List(_ context.Context) ([]domain.Guideline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Guideline
	for _, g := range s.guidelines {
		out = append(out, *g)
	}
	return out, nil
}

func (s *fakeGuidelineStore) FindCandidates(_ context.Context, q domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Queries = append(s.Queries, q)
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	return append([]domain.MatchCandidate(nil), s.Candidates...), nil
}

func (s *fakeGuidelineStore) ListMissingEmbedding(_ context.Context, limit int) ([]domain.Guideline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Guideline
	for _, g := range s.guidelines {
		if g.Enabled && !g.HasEmbedding() && len(out) < limit {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *fakeGuidelineStore) SetEmbedding(_ context.Context, id, condition string, embedding []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guidelines[id]
	if !ok || g.Condition != condition {
		return false, nil
	}
	g.Embedding = embedding
	return true, nil
}

// hookEmbedder runs before on every call, then delegates to inner.
type hookEmbedder struct {
	inner  domain.EmbeddingClient
	before func(text string)
}

func (h *hookEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.before != nil {
		h.before(text)
	}
	return h.inner.Embed(ctx, text)
}

func candidate(id string, priority int, similarity float32) domain.MatchCandidate {
	return domain.MatchCandidate{
		Guideline: domain.Guideline{
			ID:        id,
			Title:     "guideline " + id,
			Condition: "condition " + id,
			Action:    "action " + id,
			Priority:  priority,
			Enabled:   true,
		},
		Similarity: similarity,
		Embedded:   true,
	}
}

func collectIDs(candidates []domain.MatchCandidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}
