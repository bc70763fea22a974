// Package auth - revocation.go tracks signed-out session ids until their tokens expire.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records revoked session ids
type RevocationList interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// MemoryRevocationList keeps revocations in process memory
type MemoryRevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationList creates an empty list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke marks sessionID revoked for ttl
func (l *MemoryRevocationList) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, exp := range l.entries {
		if now.After(exp) {
			delete(l.entries, id)
		}
	}
	l.entries[sessionID] = now.Add(ttl)
	return nil
}

// IsRevoked reports whether sessionID is currently revoked
func (l *MemoryRevocationList) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	exp, ok := l.entries[sessionID]
	if !ok {
		return false, nil
	}
	if l.now().After(exp) {
		delete(l.entries, sessionID)
		return false, nil
	}
	return true, nil
}

// RedisRevocationList stores revocations as expiring redis keys shared by all instances
type RedisRevocationList struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationList creates a list storing keys under prefix
func NewRedisRevocationList(client redis.UniversalClient, prefix string) *RedisRevocationList {
	return &RedisRevocationList{client: client, prefix: prefix}
}

func (l *RedisRevocationList) key(sessionID string) string {
	return l.prefix + "revoked:" + sessionID
}

// Revoke marks sessionID revoked for ttl
func (l *RedisRevocationList) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := l.client.Set(ctx, l.key(sessionID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether sessionID is currently revoked
func (l *RedisRevocationList) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return n > 0, nil
}
