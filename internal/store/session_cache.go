package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// VersionedSessionStore is a session store that can report a session's
// current version without loading it.
type VersionedSessionStore interface {
	domain.SessionStore
	Version(ctx context.Context, id uuid.UUID) (int64, error)
}

// CachedSessionStore is a read-through cache in front of a shared session
// store. Every Get asks the backend for the current version and serves the
// cached copy only when the versions match, so a write from another replica
// is always seen by the next read.
type CachedSessionStore struct {
	inner VersionedSessionStore
	cache *cache.Cache
}

func NewCachedSessionStore(inner VersionedSessionStore, ttl time.Duration) *CachedSessionStore {
	return &CachedSessionStore{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *CachedSessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.ConversationSession, error) {
	key := id.String()
	if x, found := s.cache.Get(key); found {
		cached := x.(*domain.ConversationSession)
		version, err := s.inner.Version(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.cache.Delete(key)
			}
			return nil, err
		}
		if version == cached.Version {
			return cached.Clone(), nil
		}
		s.cache.Delete(key)
	}

	sess, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, sess.Clone(), cache.DefaultExpiration)
	return sess, nil
}

func (s *CachedSessionStore) Create(ctx context.Context, sess *domain.ConversationSession) error {
	if err := s.inner.Create(ctx, sess); err != nil {
		return err
	}
	s.cache.Set(sess.ID.String(), sess.Clone(), cache.DefaultExpiration)
	return nil
}

func (s *CachedSessionStore) Update(ctx context.Context, sess *domain.ConversationSession) error {
	err := s.inner.Update(ctx, sess)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
			s.cache.Delete(sess.ID.String())
		}
		return err
	}
	s.cache.Set(sess.ID.String(), sess.Clone(), cache.DefaultExpiration)
	return nil
}

var _ domain.SessionStore = (*CachedSessionStore)(nil)
