// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package session

import (
	"context"
	"time"
)

// Store persists sessions keyed by the hash of the opaque id.
type Store interface {
	// Insert persists a new session row.
	Insert(ctx context.Context, s *Session) error

	// FindByHash returns the session row, revoked or not, or
	// apperr.NotFound when the hash was never issued.
	FindByHash(ctx context.Context, hash string) (*Session, error)

	// MarkRevoked stamps revoked_at on one session. Revoking an already
	// revoked session is a no-op.
	MarkRevoked(ctx context.Context, hash string, at time.Time) error

	// MarkAllRevoked stamps revoked_at on every live session of a
	// principal and returns the affected hashes for fan-out.
	MarkAllRevoked(ctx context.Context, principalID string, at time.Time) ([]string, error)

	// ListActive returns the live sessions of a principal, newest first.
	ListActive(ctx context.Context, principalID string, now time.Time) ([]Session, error)
}
