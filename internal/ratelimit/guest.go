// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Guest-email ownership probes are an unauthenticated oracle ("does this
// email own the resource?"), so they get a far tighter budget than any
// configured endpoint class.
const (
	guestProbesPerMinute = 3
	guestBurst           = 3
)

// GuestGuard throttles unauthenticated guest-email ownership checks per
// source IP using a token bucket.
type GuestGuard struct {
	mu      sync.Mutex
	buckets map[string]*guestBucket
}

type guestBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGuestGuard constructs an empty guard.
func NewGuestGuard() *GuestGuard {
	return &GuestGuard{buckets: make(map[string]*guestBucket)}
}

// Allow reports whether one more guest probe from ip may proceed.
func (g *GuestGuard) Allow(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket, found := g.buckets[ip]
	if !found {
		bucket = &guestBucket{
			limiter: rate.NewLimiter(rate.Limit(guestProbesPerMinute)/60, guestBurst),
		}
		g.buckets[ip] = bucket
	}
	bucket.lastSeen = time.Now()

	// Opportunistic cleanup: drop buckets idle for over an hour.
	if len(g.buckets) > 1024 {
		cutoff := time.Now().Add(-1 * time.Hour)
		for key, b := range g.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(g.buckets, key)
			}
		}
	}

	return bucket.limiter.Allow()
}
