// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

// Package clock abstracts wall-clock time behind a small interface so that
// time-dependent components (rate limiter, token codec, job leases) can be
// tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
//
// # Why an interface?
//
// The rate limiter and token codec make admission decisions based on "now".
// Injecting a [Clock] lets tests replay a frozen input and assert the exact
// same decision, which is a hard requirement of the admission pipeline.
type Clock interface {
	Now() time.Time
}

// System is the production clock backed by [time.Now].
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// # Test Clock

// Manual is a settable clock for tests. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock frozen at the given instant.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

// Now returns the frozen instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set pins the clock to the given instant.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
