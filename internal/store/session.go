package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.ConversationSession, error) {
	sess := &domain.ConversationSession{}
	err := s.db.QueryRow(ctx,
		`SELECT id, accomplished_guideline_ids, state, version, created_at, updated_at
		 FROM conversation_sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.AccomplishedGuidelineIDs, &sess.State, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.ConversationSession) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.AccomplishedGuidelineIDs == nil {
		sess.AccomplishedGuidelineIDs = []string{}
	}
	if sess.State == nil {
		sess.State = map[string]any{}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO conversation_sessions (id, accomplished_guideline_ids, state)
		 VALUES ($1, $2, $3)
		 RETURNING version, created_at, updated_at`,
		sess.ID, sess.AccomplishedGuidelineIDs, sess.State,
	).Scan(&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Update writes sess only if the stored version still equals sess.Version.
// On success sess.Version is advanced to the new stored version.
func (s *SessionStore) Update(ctx context.Context, sess *domain.ConversationSession) error {
	if sess.AccomplishedGuidelineIDs == nil {
		sess.AccomplishedGuidelineIDs = []string{}
	}
	if sess.State == nil {
		sess.State = map[string]any{}
	}

	err := s.db.QueryRow(ctx,
		`UPDATE conversation_sessions
		 SET accomplished_guideline_ids = $2, state = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $4
		 RETURNING version, updated_at`,
		sess.ID, sess.AccomplishedGuidelineIDs, sess.State, sess.Version,
	).Scan(&sess.Version, &sess.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversation_sessions WHERE id = $1)`, sess.ID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// Version returns the stored version of a session.
func (s *SessionStore) Version(ctx context.Context, id uuid.UUID) (int64, error) {
	var version int64
	err := s.db.QueryRow(ctx,
		`SELECT version FROM conversation_sessions WHERE id = $1`, id,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

// Verify interface compliance at compile time
var _ VersionedSessionStore = (*SessionStore)(nil)
