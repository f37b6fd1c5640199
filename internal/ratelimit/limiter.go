// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package ratelimit implements per-identity, per-endpoint-class sliding-window
rate limiting with a once-per-window burst allowance.

Semantics:

  - A key (identity, class) admits at most N requests in any window of
    length W, plus up to `burst` extra admits consumable once per window.
  - Cumulative admits in any window never exceed N + burst.
  - Resetting a key is cheap (map delete).

State lives in process memory; evaluation never blocks on I/O. Idle keys are
evicted by a background sweep, mirroring the cleanup loop every long-lived
per-client map needs.
*/
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/settings"
)

const (
	// sweepInterval is how often idle key entries are removed from memory.
	sweepInterval = 1 * time.Minute
	// entryTTL is how long a key must be idle before its entry is deleted.
	entryTTL = 3 * time.Minute
)

// Key identifies one rate-limit bucket.
type Key struct {
	// Identity is the resolved identity selector: principal id for
	// authenticated traffic, source IP for public endpoints.
	Identity string
	// Class is the endpoint class (LOGIN, WRITE, ...).
	Class string
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is the number of regular (non-burst) admits left in the
	// current window.
	Remaining int
	// ResetAt is when the oldest counted event leaves the window.
	ResetAt time.Time
}

// entry is the per-key sliding window state.
type entry struct {
	mu sync.Mutex
	// admits holds the timestamps of admitted events inside the window.
	admits []time.Time
	// burstUsed counts burst admits consumed in the current burst window.
	burstUsed int
	// burstWindowStart anchors the once-per-window burst accounting.
	burstWindowStart time.Time
	lastSeen         time.Time
}

// Limiter evaluates sliding-window budgets for keys.
type Limiter struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[Key]*entry
}

// New constructs a limiter using the given clock.
func New(clk clock.Clock) *Limiter {
	return &Limiter{
		clk:     clk,
		entries: make(map[Key]*entry),
	}
}

// Check evaluates one request against the budget for its key.
//
// # Concurrency
//
// Each key owns a lock, so concurrent admits from the same key serialize
// and the cumulative-admit invariant holds exactly; different keys never
// contend.
func (l *Limiter) Check(key Key, budget settings.RateLimitClass) Decision {
	now := l.clk.Now()
	e := l.getOrCreate(key, now)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = now

	windowStart := now.Add(-budget.Window)

	// Drop events that slid out of the window.
	kept := e.admits[:0]
	for _, ts := range e.admits {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	e.admits = kept

	// The burst allowance renews once the window that consumed it has
	// fully passed.
	if e.burstUsed > 0 && !e.burstWindowStart.After(windowStart) {
		e.burstUsed = 0
	}

	// Regular budget.
	if len(e.admits) < budget.Limit {
		e.admits = append(e.admits, now)
		return Decision{
			Allowed:   true,
			Remaining: budget.Limit - len(e.admits),
			ResetAt:   e.admits[0].Add(budget.Window),
		}
	}

	// Burst budget: at most `burst` extra admits per window.
	if e.burstUsed < budget.Burst {
		if e.burstUsed == 0 {
			e.burstWindowStart = now
		}
		e.burstUsed++
		e.admits = append(e.admits, now)
		return Decision{
			Allowed:   true,
			Remaining: 0,
			ResetAt:   e.admits[0].Add(budget.Window),
		}
	}

	return Decision{
		Allowed:   false,
		Remaining: 0,
		ResetAt:   e.admits[0].Add(budget.Window),
	}
}

// Reset clears all state for a key.
func (l *Limiter) Reset(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// getOrCreate returns the entry for key, creating it on first sight.
func (l *Limiter) getOrCreate(key Key, now time.Time) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, found := l.entries[key]
	if !found {
		e = &entry{lastSeen: now}
		l.entries[key] = e
	}
	return e
}

// StartSweep launches the idle-entry eviction loop. It returns immediately
// and stops when ctx is cancelled.
func (l *Limiter) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cutoff := l.clk.Now().Add(-entryTTL)
				l.mu.Lock()
				for key, e := range l.entries {
					e.mu.Lock()
					idle := e.lastSeen.Before(cutoff)
					e.mu.Unlock()
					if idle {
						delete(l.entries, key)
					}
				}
				l.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}
