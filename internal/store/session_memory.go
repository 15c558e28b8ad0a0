package store

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemorySessionStore is a process-local session store for development and
// tests. Sessions expire after ttl without activity.
type MemorySessionStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemorySessionStore{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (s *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (*domain.ConversationSession, error) {
	if x, found := s.cache.Get(id.String()); found {
		return x.(*domain.ConversationSession).Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *MemorySessionStore) Version(_ context.Context, id uuid.UUID) (int64, error) {
	if x, found := s.cache.Get(id.String()); found {
		return x.(*domain.ConversationSession).Version, nil
	}
	return 0, ErrNotFound
}

func (s *MemorySessionStore) Create(_ context.Context, sess *domain.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	now := time.Now().UTC()
	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now

	if err := s.cache.Add(sess.ID.String(), sess.Clone(), cache.DefaultExpiration); err != nil {
		return ErrConflict
	}
	return nil
}

func (s *MemorySessionStore) Update(_ context.Context, sess *domain.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, found := s.cache.Get(sess.ID.String())
	if !found {
		return ErrNotFound
	}
	current := x.(*domain.ConversationSession)
	if current.Version != sess.Version {
		return ErrVersionConflict
	}

	sess.Version++
	sess.CreatedAt = current.CreatedAt
	sess.UpdatedAt = time.Now().UTC()
	s.cache.Set(sess.ID.String(), sess.Clone(), cache.DefaultExpiration)
	return nil
}

var _ VersionedSessionStore = (*MemorySessionStore)(nil)
