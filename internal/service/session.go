package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// maxUpdateAttempts bounds the compare-and-swap retries in MarkAccomplished.
const maxUpdateAttempts = 3

// SessionService loads, creates, and advances conversation sessions.
type SessionService struct {
	store  domain.SessionStore
	logger *zap.Logger
}

func NewSessionService(s domain.SessionStore, logger *zap.Logger) *SessionService {
	return &SessionService{store: s, logger: logger}
}

// Get returns an existing session.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*domain.ConversationSession, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// ResolveID returns the session id a turn runs under: rawID when it is a
// well-formed UUID, otherwise a fresh one. It never touches the store.
func (s *SessionService) ResolveID(rawID string) uuid.UUID {
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err == nil && id != uuid.Nil {
			return id
		}
		s.logger.Info("ignoring invalid session id", zap.String("session_id", rawID))
	}
	return uuid.New()
}

// LoadOrCreate returns the session named by rawID. An empty or malformed id
// starts a new session with a fresh id; a well-formed id with no stored
// session starts a new session under that id.
func (s *SessionService) LoadOrCreate(ctx context.Context, rawID string) (*domain.ConversationSession, error) {
	id := s.ResolveID(rawID)

	sess, err := s.store.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess = &domain.ConversationSession{
		ID:                       id,
		AccomplishedGuidelineIDs: []string{},
		State:                    map[string]any{},
	}
	if err := s.store.Create(ctx, sess); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Created concurrently by another turn.
			return s.store.Get(ctx, id)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("created session", zap.String("session_id", sess.ID.String()))
	return sess, nil
}

// MarkAccomplished merges the turn's satisfied guidelines into the session
// and persists it. A concurrent write to the same session is resolved by
// re-reading and re-merging, so ids added by either turn survive. sess is
// updated in place to the persisted state. Returns the ids newly added.
func (s *SessionService) MarkAccomplished(ctx context.Context, sess *domain.ConversationSession, active []domain.Guideline, validations []domain.ValidationResult) ([]string, error) {
	current := sess.Clone()

	for attempt := 1; ; attempt++ {
		before := current.AccomplishedSet()
		merged := MergeAccomplished(current.AccomplishedGuidelineIDs, active, validations)

		var added []string
		for _, id := range merged {
			if _, ok := before[id]; !ok {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			*sess = *current
			return nil, nil
		}

		current.AccomplishedGuidelineIDs = merged
		err := s.store.Update(ctx, current)
		if err == nil {
			*sess = *current
			return added, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= maxUpdateAttempts {
			return nil, fmt.Errorf("update session %s: %w", sess.ID, err)
		}

		s.logger.Debug("session version conflict, retrying",
			zap.String("session_id", sess.ID.String()),
			zap.Int("attempt", attempt),
		)
		current, err = s.store.Get(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("reload session %s: %w", sess.ID, err)
		}
	}
}
