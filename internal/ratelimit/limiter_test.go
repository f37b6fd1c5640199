// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/settings"
	"github.com/nexioerp/nexio/internal/ratelimit"
)

var loginBudget = settings.RateLimitClass{Limit: 5, Window: time.Minute, Burst: 2}

func newLimiter() (*ratelimit.Limiter, *clock.Manual) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return ratelimit.New(clk), clk
}

func TestLimiter_BurstWindow(t *testing.T) {
	limiter, _ := newLimiter()
	key := ratelimit.Key{Identity: "203.0.113.7", Class: "LOGIN"}

	// 5 regular + 2 burst admits succeed back to back.
	for i := 0; i < 7; i++ {
		decision := limiter.Check(key, loginBudget)
		assert.True(t, decision.Allowed, "attempt %d", i+1)
	}

	// The 8th attempt inside the same window is denied.
	decision := limiter.Check(key, loginBudget)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.False(t, decision.ResetAt.IsZero())
}

func TestLimiter_WindowSlides(t *testing.T) {
	limiter, clk := newLimiter()
	key := ratelimit.Key{Identity: "u1", Class: "LOGIN"}

	for i := 0; i < 7; i++ {
		assert.True(t, limiter.Check(key, loginBudget).Allowed)
	}
	assert.False(t, limiter.Check(key, loginBudget).Allowed)

	// After the full window passes, both budget and burst renew.
	clk.Advance(time.Minute + time.Second)
	for i := 0; i < 7; i++ {
		assert.True(t, limiter.Check(key, loginBudget).Allowed, "attempt %d after window", i+1)
	}
	assert.False(t, limiter.Check(key, loginBudget).Allowed)
}

func TestLimiter_BurstOncePerWindow(t *testing.T) {
	limiter, clk := newLimiter()
	key := ratelimit.Key{Identity: "u1", Class: "LOGIN"}

	for i := 0; i < 7; i++ {
		assert.True(t, limiter.Check(key, loginBudget).Allowed)
	}

	// Half a window later the oldest events slide out, freeing regular
	// budget, but the burst stays consumed until its anchor window passes.
	clk.Advance(40 * time.Second)
	for i := 0; i < 7; i++ {
		limiter.Check(key, loginBudget)
	}

	// Total admits inside any single window never exceed N + burst.
	decision := limiter.Check(key, loginBudget)
	assert.False(t, decision.Allowed)
}

func TestLimiter_RemainingCountsDown(t *testing.T) {
	limiter, _ := newLimiter()
	key := ratelimit.Key{Identity: "u1", Class: "READ"}
	budget := settings.RateLimitClass{Limit: 3, Window: time.Minute}

	assert.Equal(t, 2, limiter.Check(key, budget).Remaining)
	assert.Equal(t, 1, limiter.Check(key, budget).Remaining)
	assert.Equal(t, 0, limiter.Check(key, budget).Remaining)
	assert.False(t, limiter.Check(key, budget).Allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newLimiter()
	budget := settings.RateLimitClass{Limit: 1, Window: time.Minute}

	assert.True(t, limiter.Check(ratelimit.Key{Identity: "a", Class: "READ"}, budget).Allowed)
	assert.False(t, limiter.Check(ratelimit.Key{Identity: "a", Class: "READ"}, budget).Allowed)

	// A different identity and a different class both have fresh budgets.
	assert.True(t, limiter.Check(ratelimit.Key{Identity: "b", Class: "READ"}, budget).Allowed)
	assert.True(t, limiter.Check(ratelimit.Key{Identity: "a", Class: "WRITE"}, budget).Allowed)
}

func TestLimiter_Reset(t *testing.T) {
	limiter, _ := newLimiter()
	key := ratelimit.Key{Identity: "u1", Class: "READ"}
	budget := settings.RateLimitClass{Limit: 1, Window: time.Minute}

	assert.True(t, limiter.Check(key, budget).Allowed)
	assert.False(t, limiter.Check(key, budget).Allowed)

	limiter.Reset(key)
	assert.True(t, limiter.Check(key, budget).Allowed)
}

func TestLimiter_ConcurrentSafety(t *testing.T) {
	limiter, _ := newLimiter()
	key := ratelimit.Key{Identity: "u1", Class: "WRITE"}
	budget := settings.RateLimitClass{Limit: 50, Window: time.Minute, Burst: 10}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(key, budget).Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Cumulative admits in the window never exceed N + burst.
	assert.LessOrEqual(t, admitted, 60)
	assert.GreaterOrEqual(t, admitted, 50)
}

func TestGuestGuard(t *testing.T) {
	guard := ratelimit.NewGuestGuard()

	// The token bucket allows the initial burst, then throttles hard.
	allowed := 0
	for i := 0; i < 10; i++ {
		if guard.Allow("198.51.100.9") {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	// Other IPs are unaffected.
	assert.True(t, guard.Allow("198.51.100.10"))
}
