package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers revoked sessions until their tokens could no longer
// validate anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

const revokedKeyPrefix = "session:revoked:"

type RedisRevocationStore struct {
	rc *redis.Client
}

func NewRedisRevocationStore(rc *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rc: rc}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.rc.Set(ctx, revokedKeyPrefix+sessionID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked returns the store error to the caller, which must treat it as revoked.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rc.Exists(ctx, revokedKeyPrefix+sessionID).Result()
	if err != nil {
		return true, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

type MemoryRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationStore(now func() time.Time) *MemoryRevocationStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocationStore{revoked: map[string]time.Time{}, now: now}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, sessionID string, until time.Time) error {
	s.mu.Lock()
	s.revoked[sessionID] = until
	s.mu.Unlock()
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	until, ok := s.revoked[sessionID]
	s.mu.RUnlock()
	return ok && s.now().Before(until), nil
}

func (s *MemoryRevocationStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
			n++
		}
	}
	return n
}
