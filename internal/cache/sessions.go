package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stackpad.org/internal/auth"
)

// SessionStore keeps admin sessions in redis so any API instance can
// resolve a cookie. Each session is one key with the TTL on the key
// itself.
type SessionStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ auth.SessionStore = (*SessionStore)(nil)

// NewSessionStore builds a redis-backed session store sharing the
// cache's client.
func NewSessionStore(c *Cache, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{rdb: c.rdb, prefix: c.prefix + ":session", ttl: ttl}
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *SessionStore) Put(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return auth.ErrInvalidInput
	}
	if err := s.rdb.Set(ctx, s.key(sessionID), userID, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: put session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.rdb.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache: get session: %w", err)
	}
	return userID, nil
}

func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("cache: clear session: %w", err)
	}
	return nil
}
