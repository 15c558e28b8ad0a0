package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "conductor:session:"

// RedisSessionStore keeps sessions as JSON values. Updates use WATCH so a
// concurrent writer aborts the transaction instead of being overwritten.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionStore creates a store whose keys expire after ttl of
// inactivity. A zero ttl keeps sessions forever.
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func redisSessionKey(id uuid.UUID) string {
	return redisSessionPrefix + id.String()
}

func (s *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.ConversationSession, error) {
	raw, err := s.rdb.Get(ctx, redisSessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSession(raw)
}

func (s *RedisSessionStore) Create(ctx context.Context, sess *domain.ConversationSession) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	now := time.Now().UTC()
	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, redisSessionKey(sess.ID), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *RedisSessionStore) Update(ctx context.Context, sess *domain.ConversationSession) error {
	key := redisSessionKey(sess.ID)

	next := sess.Clone()
	next.Version = sess.Version + 1
	next.UpdatedAt = time.Now().UTC()

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Version != sess.Version {
			return ErrVersionConflict
		}
		next.CreatedAt = current.CreatedAt

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}

	sess.Version = next.Version
	sess.CreatedAt = next.CreatedAt
	sess.UpdatedAt = next.UpdatedAt
	return nil
}

func decodeSession(raw []byte) (*domain.ConversationSession, error) {
	var sess domain.ConversationSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

var _ domain.SessionStore = (*RedisSessionStore)(nil)
