package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"go.uber.org/zap"
)

var ErrRetrieval = errors.New("guideline retrieval failed")

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// guideline to become a candidate.
	DefaultSimilarityThreshold float32 = 0.3
	// DefaultMaxCandidates caps the candidates passed to the classifier.
	DefaultMaxCandidates = 10
)

// Retriever runs the state-aware similarity search for a turn.
type Retriever struct {
	store     domain.GuidelineStore
	threshold float32
	limit     int
	logger    *zap.Logger
}

func NewRetriever(store domain.GuidelineStore, threshold float32, limit int, logger *zap.Logger) *Retriever {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	return &Retriever{
		store:     store,
		threshold: threshold,
		limit:     limit,
		logger:    logger,
	}
}

// Retrieve returns up to the configured limit of candidates for the query
// embedding, skipping guidelines already accomplished in the session.
// The store filters and orders in its query. Exclusion, threshold, enabled
// state, embedding presence, ordering and limit are checked again here so a
// lenient store cannot leak a guideline that must not be retrieved.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, accomplished []string) ([]domain.MatchCandidate, error) {
	candidates, err := r.store.FindCandidates(ctx, domain.CandidateQuery{
		Embedding:     embedding,
		ExcludeIDs:    accomplished,
		MinSimilarity: r.threshold,
		Limit:         r.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	excluded := make(map[string]struct{}, len(accomplished))
	for _, id := range accomplished {
		excluded[id] = struct{}{}
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		if !c.Embedded || c.Similarity < r.threshold || !c.Enabled {
			continue
		}
		filtered = append(filtered, c)
	}

	SortCandidates(filtered)
	if len(filtered) > r.limit {
		filtered = filtered[:r.limit]
	}

	r.logger.Debug("retrieved guideline candidates",
		zap.Int("returned", len(candidates)),
		zap.Int("kept", len(filtered)),
		zap.Int("excluded", len(accomplished)),
	)
	return filtered, nil
}

// SortCandidates orders candidates by priority descending, then similarity
// descending. Ties keep their incoming order.
func SortCandidates(candidates []domain.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Similarity > candidates[j].Similarity
	})
}
