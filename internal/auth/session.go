package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// SessionStore is the server-held state behind the admin surface's opaque
// cookie. Writes must be atomic per session key; sessions are independent, so
// no cross-session coordination is required.
type SessionStore interface {
	Put(ctx context.Context, sessionID, userID string) error
	Get(ctx context.Context, sessionID string) (string, error)
	Clear(ctx context.Context, sessionID string) error
}

// NewSessionID returns a cryptographically random, URL-safe session key.
func NewSessionID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

type sessionEntry struct {
	userID    string
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory. Suitable for a single
// API instance and for tests; multi-instance deployments use the redis-backed
// store from internal/cache.
type MemorySessionStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]sessionEntry
	now     func() time.Time
}

// NewMemorySessionStore constructs a MemorySessionStore with the given TTL.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		ttl:     ttl,
		entries: make(map[string]sessionEntry),
		now:     time.Now,
	}
}

func (s *MemorySessionStore) Put(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = sessionEntry{userID: userID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sessionID)
		s.mu.Unlock()
		return "", ErrNotFound
	}
	return entry.userID, nil
}

func (s *MemorySessionStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
