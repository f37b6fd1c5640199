// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexioerp/nexio/internal/platform/constants"
)

// RevocationList is the cross-node fan-out channel for credential
// revocation. Entries carry a TTL equal to the remaining credential
// lifetime, after which the authoritative store alone rejects them.
type RevocationList interface {
	// MarkSession flags a session hash as revoked.
	MarkSession(ctx context.Context, hash string, ttl time.Duration) error

	// SessionRevoked reports whether a session hash has been flagged.
	SessionRevoked(ctx context.Context, hash string) (bool, error)

	// DenyJTI flags a signed-token id as revoked.
	DenyJTI(ctx context.Context, jti string, ttl time.Duration) error

	// JTIDenied reports whether a token id has been flagged.
	JTIDenied(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationList fans revocations out through Redis.
type RedisRevocationList struct {
	client *redis.Client
}

// NewRedisRevocationList creates a Redis-backed revocation list.
func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

func (r *RedisRevocationList) MarkSession(ctx context.Context, hash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := constants.RedisPrefixRevokedSession + hash
	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis_revocation_mark_session_failed: %w", err)
	}
	return nil
}

func (r *RedisRevocationList) SessionRevoked(ctx context.Context, hash string) (bool, error) {
	n, err := r.client.Exists(ctx, constants.RedisPrefixRevokedSession+hash).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revocation_check_session_failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRevocationList) DenyJTI(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := constants.RedisPrefixDeniedJTI + jti
	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis_revocation_deny_jti_failed: %w", err)
	}
	return nil
}

func (r *RedisRevocationList) JTIDenied(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, constants.RedisPrefixDeniedJTI+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revocation_check_jti_failed: %w", err)
	}
	return n > 0, nil
}

// MemoryRevocationList is an in-process RevocationList for tests.
type MemoryRevocationList struct {
	mu       sync.RWMutex
	sessions map[string]struct{}
	jtis     map[string]struct{}
}

// NewMemoryRevocationList creates an empty in-memory revocation list.
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		sessions: make(map[string]struct{}),
		jtis:     make(map[string]struct{}),
	}
}

func (m *MemoryRevocationList) MarkSession(_ context.Context, hash string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[hash] = struct{}{}
	return nil
}

func (m *MemoryRevocationList) SessionRevoked(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[hash]
	return ok, nil
}

func (m *MemoryRevocationList) DenyJTI(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jtis[jti] = struct{}{}
	return nil
}

func (m *MemoryRevocationList) JTIDenied(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.jtis[jti]
	return ok, nil
}
