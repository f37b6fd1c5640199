// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
)

// Cooldown throttles repeated submissions of the same kind per tenant,
// e.g. at most one seed job per five minutes.
type Cooldown interface {
	// Acquire attempts to take the cooldown slot. It reports false
	// while a previous acquisition is still cooling down.
	Acquire(ctx context.Context, kind, tenantID string, ttl time.Duration) (bool, error)
}

// RedisCooldown shares submission cooldowns across nodes.
type RedisCooldown struct {
	client *redis.Client
}

// NewRedisCooldown creates a Redis-backed cooldown.
func NewRedisCooldown(client *redis.Client) *RedisCooldown {
	return &RedisCooldown{client: client}
}

func (r *RedisCooldown) Acquire(ctx context.Context, kind, tenantID string, ttl time.Duration) (bool, error) {
	key := constants.RedisPrefixJobCooldown + kind + ":" + tenantID
	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_job_cooldown_acquire_failed: %w", err)
	}
	return ok, nil
}

// MemoryCooldown is an in-process Cooldown for tests.
type MemoryCooldown struct {
	clk clock.Clock

	mu    sync.Mutex
	until map[string]time.Time
}

// NewMemoryCooldown creates an empty in-memory cooldown.
func NewMemoryCooldown(clk clock.Clock) *MemoryCooldown {
	return &MemoryCooldown{clk: clk, until: make(map[string]time.Time)}
}

func (m *MemoryCooldown) Acquire(_ context.Context, kind, tenantID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := kind + ":" + tenantID
	now := m.clk.Now()
	if held, ok := m.until[key]; ok && now.Before(held) {
		return false, nil
	}
	m.until[key] = now.Add(ttl)
	return true, nil
}
