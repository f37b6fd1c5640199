// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package session implements the opaque-credential store.

# Identifiers

Session ids are 256-bit CSPRNG values, handed to the client once at
creation. Only the SHA-256 hash is persisted, so a database leak does
not expose usable credentials.

# Revocation

Revocation is written to Postgres and fanned out through Redis so every
node observes it within the propagation window, regardless of replica
lag. Lookups on revoked and unknown ids are deliberately
indistinguishable to callers.
*/
package session

import (
	"errors"
	"time"
)

var (
	// ErrUnknown is returned for ids that do not resolve to a live
	// session: never issued, revoked, or purged.
	ErrUnknown = errors.New("session_unknown")

	// ErrExpired is returned for ids whose lifetime has lapsed.
	ErrExpired = errors.New("session_expired")
)

// Session is a persisted opaque credential. The plaintext id never
// appears here; Hash is its SHA-256 digest.
type Session struct {
	Hash        string     `json:"-"`
	PrincipalID string     `json:"principal_id"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	IP          string     `json:"ip,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
}

// Active reports whether the session is neither revoked nor expired at t.
func (s *Session) Active(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}
