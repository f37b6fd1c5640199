// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"sync"
	"time"

	"github.com/nexioerp/nexio/internal/platform/clock"
)

// CachedStore wraps a Store with a short-lived tenant snapshot cache.
// Tenant rows sit on the hot path of every admitted request; state
// changes only need to surface within the cache TTL, the same bound
// the settings registry gives hot-reloaded configuration.
//
// Affiliations, plans and usage counters are never cached: counters
// move on every metered write and affiliations guard access decisions.
type CachedStore struct {
	Store

	clk clock.Clock
	ttl time.Duration

	mu     sync.RWMutex
	byID   map[string]cachedTenant
	byCode map[string]cachedTenant
}

type cachedTenant struct {
	tenant    Tenant
	fetchedAt time.Time
}

// NewCachedStore wraps inner with a tenant cache of the given TTL.
func NewCachedStore(inner Store, clk clock.Clock, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:  inner,
		clk:    clk,
		ttl:    ttl,
		byID:   make(map[string]cachedTenant),
		byCode: make(map[string]cachedTenant),
	}
}

func (c *CachedStore) FindByID(ctx context.Context, id string) (*Tenant, error) {
	if t, ok := c.lookup(c.byID, id); ok {
		return t, nil
	}
	t, err := c.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(t)
	return t, nil
}

func (c *CachedStore) FindByCode(ctx context.Context, code string) (*Tenant, error) {
	if t, ok := c.lookup(c.byCode, code); ok {
		return t, nil
	}
	t, err := c.Store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.remember(t)
	return t, nil
}

// Invalidate drops a tenant from the cache, for callers that just
// changed its state and want the new row visible immediately.
func (c *CachedStore) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.byID[id]; ok {
		delete(c.byCode, entry.tenant.Code)
	}
	delete(c.byID, id)
}

func (c *CachedStore) lookup(m map[string]cachedTenant, key string) (*Tenant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := m[key]
	if !ok || c.clk.Now().Sub(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	cp := entry.tenant
	return &cp, true
}

func (c *CachedStore) remember(t *Tenant) {
	entry := cachedTenant{tenant: *t, fetchedAt: c.clk.Now()}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[t.ID] = entry
	c.byCode[t.Code] = entry
}
