package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type GuidelineStore struct {
	db *pgxpool.Pool
}

func NewGuidelineStore(db *pgxpool.Pool) *GuidelineStore {
	return &GuidelineStore{db: db}
}

// Upsert inserts or replaces a guideline by id. A changed condition clears
// the stored embedding unless g carries a fresh one, so stale vectors are
// never matched against the new text.
func (s *GuidelineStore) Upsert(ctx context.Context, g *domain.Guideline) error {
	var embedding *pgvector.Vector
	if g.HasEmbedding() {
		v := pgvector.NewVector(g.Embedding)
		embedding = &v
	}

	var stored *pgvector.Vector
	err := s.db.QueryRow(ctx,
		`INSERT INTO guidelines (id, title, condition, action, priority, category, enabled, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			condition = EXCLUDED.condition,
			action = EXCLUDED.action,
			priority = EXCLUDED.priority,
			category = EXCLUDED.category,
			enabled = EXCLUDED.enabled,
			embedding = CASE
				WHEN EXCLUDED.embedding IS NOT NULL THEN EXCLUDED.embedding
				WHEN guidelines.condition = EXCLUDED.condition THEN guidelines.embedding
				ELSE NULL
			END,
			updated_at = NOW()
		RETURNING embedding, created_at, updated_at`,
		g.ID, g.Title, g.Condition, g.Action, g.Priority, g.Category, g.Enabled, embedding,
	).Scan(&stored, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert guideline %s: %w", g.ID, err)
	}

	g.Embedding = nil
	if stored != nil {
		g.Embedding = stored.Slice()
	}
	return nil
}

func (s *GuidelineStore) GetByID(ctx context.Context, id string) (*domain.Guideline, error) {
	g := &domain.Guideline{}
	var embedding *pgvector.Vector

	err := s.db.QueryRow(ctx,
		`SELECT id, title, condition, action, priority, category, enabled, embedding, created_at, updated_at
		FROM guidelines WHERE id = $1`,
		id,
	).Scan(&g.ID, &g.Title, &g.Condition, &g.Action, &g.Priority, &g.Category, &g.Enabled, &embedding, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if embedding != nil {
		g.Embedding = embedding.Slice()
	}
	return g, nil
}

// List returns all guidelines without their embeddings.
func (s *GuidelineStore) List(ctx context.Context) ([]domain.Guideline, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, condition, action, priority, category, enabled, created_at, updated_at
		FROM guidelines
		ORDER BY priority DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanGuidelines(rows)
}

// FindCandidates runs the state-aware similarity search: only enabled
// guidelines with an embedding, at or above the threshold, not excluded,
// ordered by priority then similarity.
func (s *GuidelineStore) FindCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	// A NULL array would make NOT (id = ANY($2)) NULL and drop every row.
	exclude := q.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}

	vec := pgvector.NewVector(q.Embedding)

	rows, err := s.db.Query(ctx,
		`SELECT id, title, condition, action, priority, category, enabled, created_at, updated_at,
			1 - (embedding <=> $1) AS similarity, embedding IS NOT NULL AS embedded
		FROM guidelines
		WHERE enabled
			AND embedding IS NOT NULL
			AND NOT (id = ANY($2::text[]))
			AND 1 - (embedding <=> $1) >= $3
		ORDER BY priority DESC, similarity DESC
		LIMIT $4`,
		vec, exclude, q.MinSimilarity, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find candidates query: %w", err)
	}
	defer rows.Close()

	var results []domain.MatchCandidate
	for rows.Next() {
		var c domain.MatchCandidate
		err := rows.Scan(
			&c.ID, &c.Title, &c.Condition, &c.Action, &c.Priority, &c.Category, &c.Enabled,
			&c.CreatedAt, &c.UpdatedAt, &c.Similarity, &c.Embedded,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		results = append(results, c)
	}

	return results, rows.Err()
}

// ListMissingEmbedding returns enabled guidelines that still need an embedding.
func (s *GuidelineStore) ListMissingEmbedding(ctx context.Context, limit int) ([]domain.Guideline, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, title, condition, action, priority, category, enabled, created_at, updated_at
		FROM guidelines
		WHERE enabled AND embedding IS NULL
		ORDER BY updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanGuidelines(rows)
}

func (s *GuidelineStore) SetEmbedding(ctx context.Context, id, condition string, embedding []float32) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE guidelines SET embedding = $1, updated_at = NOW()
		WHERE id = $2 AND condition = $3`,
		pgvector.NewVector(embedding), id, condition,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanGuidelines(rows pgx.Rows) ([]domain.Guideline, error) {
	var guidelines []domain.Guideline
	for rows.Next() {
		var g domain.Guideline
		if err := rows.Scan(
			&g.ID, &g.Title, &g.Condition, &g.Action, &g.Priority, &g.Category, &g.Enabled,
			&g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, err
		}
		guidelines = append(guidelines, g)
	}
	return guidelines, rows.Err()
}

// Verify interface compliance at compile time
var _ domain.GuidelineStore = (*GuidelineStore)(nil)
