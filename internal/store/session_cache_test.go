package store

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSessionStore struct {
	*MemorySessionStore
	gets int
}

func (c *countingSessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.ConversationSession, error) {
	c.gets++
	return c.MemorySessionStore.Get(ctx, id)
}

func TestCachedSessionStore_ReadThrough(t *testing.T) {
	inner := &countingSessionStore{MemorySessionStore: NewMemorySessionStore(time.Hour)}
	s := NewCachedSessionStore(inner, time.Minute)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, inner.Create(ctx, &domain.ConversationSession{ID: id}))

	_, err := s.Get(ctx, id)
	require.NoError(t, err)
	_, err = s.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.gets)
}

func TestCachedSessionStore_SeesWritesFromOtherReplica(t *testing.T) {
	shared := NewMemorySessionStore(time.Hour)
	nodeA := NewCachedSessionStore(shared, time.Minute)
	nodeB := NewCachedSessionStore(shared, time.Minute)
	ctx := context.Background()

	sess := &domain.ConversationSession{}
	require.NoError(t, nodeA.Create(ctx, sess))

	// Node B caches the empty session.
	seen, err := nodeB.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, seen.AccomplishedGuidelineIDs)

	onA, err := nodeA.Get(ctx, sess.ID)
	require.NoError(t, err)
	onA.AccomplishedGuidelineIDs = []string{"g1"}
	require.NoError(t, nodeA.Update(ctx, onA))

	fresh, err := nodeB.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, fresh.AccomplishedGuidelineIDs)
	assert.Equal(t, int64(2), fresh.Version)
}

func TestCachedSessionStore_StaleEntryEvictedOnConflict(t *testing.T) {
	inner := &countingSessionStore{MemorySessionStore: NewMemorySessionStore(time.Hour)}
	s := NewCachedSessionStore(inner, time.Minute)
	ctx := context.Background()

	sess := &domain.ConversationSession{}
	require.NoError(t, s.Create(ctx, sess))

	stale := sess.Clone()

	// Another writer advances the stored version behind the cache.
	other, err := inner.MemorySessionStore.Get(ctx, sess.ID)
	require.NoError(t, err)
	other.AccomplishedGuidelineIDs = []string{"a"}
	require.NoError(t, inner.Update(ctx, other))

	stale.AccomplishedGuidelineIDs = []string{"b"}
	assert.ErrorIs(t, s.Update(ctx, stale), ErrVersionConflict)

	fresh, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.Version)
	assert.Equal(t, []string{"a"}, fresh.AccomplishedGuidelineIDs)
	assert.Equal(t, 1, inner.gets)
}

func TestCachedSessionStore_MissingSessionEvicted(t *testing.T) {
	inner := NewMemorySessionStore(time.Hour)
	s := NewCachedSessionStore(inner, time.Minute)
	ctx := context.Background()

	sess := &domain.ConversationSession{}
	require.NoError(t, s.Create(ctx, sess))
	inner.cache.Delete(sess.ID.String())

	_, err := s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
