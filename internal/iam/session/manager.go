// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/sec"
	"github.com/nexioerp/nexio/internal/platform/settings"
)

// Manager issues, resolves and revokes opaque sessions.
type Manager struct {
	store       Store
	revocations RevocationList
	registry    *settings.Registry
	clk         clock.Clock
}

// NewManager wires the session manager.
func NewManager(store Store, revocations RevocationList, registry *settings.Registry, clk clock.Clock) *Manager {
	return &Manager{store: store, revocations: revocations, registry: registry, clk: clk}
}

/*
Create mints a fresh session for a principal.

Parameters:
  - ctx: request context.
  - principalID: owner of the session.
  - ip, userAgent: client metadata recorded for the session list UI.

Returns:
  - string: the plaintext session id. Returned exactly once; only its
    hash is persisted.
  - *Session: the persisted row.
  - error: non-nil on generation or write failure.
*/
func (m *Manager) Create(ctx context.Context, principalID, ip, userAgent string) (string, *Session, error) {
	id, err := sec.GenerateSecureToken(constants.SessionIDBytes)
	if err != nil {
		return "", nil, fmt.Errorf("session_manager_generate_failed: %w", err)
	}

	now := m.clk.Now()
	sess := &Session{
		Hash:        sec.HashToken(id),
		PrincipalID: principalID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.registry.SessionTTL()),
		IP:          ip,
		UserAgent:   userAgent,
	}
	if err := m.store.Insert(ctx, sess); err != nil {
		return "", nil, err
	}
	return id, sess, nil
}

/*
Lookup resolves a plaintext session id to its live session.

Parameters:
  - ctx: request context.
  - id: plaintext session id as presented by the client.

Returns:
  - *Session: the live session.
  - error: ErrExpired for lapsed sessions; ErrUnknown for revoked and
    never-issued ids, which are not distinguished.
*/
func (m *Manager) Lookup(ctx context.Context, id string) (*Session, error) {
	hash := sec.HashToken(id)

	// 1. Revocation fan-out first, so a revoke on another node is
	//    honoured before any replica catches up.
	if revoked, err := m.revocations.SessionRevoked(ctx, hash); err == nil && revoked {
		return nil, ErrUnknown
	}

	// 2. Authoritative store.
	sess, err := m.store.FindByHash(ctx, hash)
	if err != nil {
		if ae := apperr.As(err); ae != nil && ae.Code == "NOT_FOUND" {
			return nil, ErrUnknown
		}
		return nil, err
	}

	now := m.clk.Now()
	switch {
	case sess.RevokedAt != nil:
		return nil, ErrUnknown
	case !now.Before(sess.ExpiresAt):
		return nil, ErrExpired
	}
	return sess, nil
}

/*
Revoke invalidates a single session by its plaintext id.

Parameters:
  - ctx: request context.
  - id: plaintext session id.

Returns:
  - error: non-nil on store failure. Unknown ids are a no-op.
*/
func (m *Manager) Revoke(ctx context.Context, id string) error {
	return m.RevokeByHash(ctx, sec.HashToken(id))
}

/*
RevokeByHash invalidates a single session by stored hash. Serves the
session list UI, where clients only ever see hashes.

Parameters:
  - ctx: request context.
  - hash: SHA-256 digest of the opaque id.

Returns:
  - error: non-nil on store failure.
*/
func (m *Manager) RevokeByHash(ctx context.Context, hash string) error {
	now := m.clk.Now()
	if err := m.store.MarkRevoked(ctx, hash, now); err != nil {
		return err
	}
	return m.fanOut(ctx, hash)
}

/*
RevokeAllFor invalidates every live session of a principal.

Parameters:
  - ctx: request context.
  - principalID: owner whose sessions are torn down.

Returns:
  - int: number of sessions revoked.
  - error: non-nil on store failure.
*/
func (m *Manager) RevokeAllFor(ctx context.Context, principalID string) (int, error) {
	now := m.clk.Now()
	hashes, err := m.store.MarkAllRevoked(ctx, principalID, now)
	if err != nil {
		return 0, err
	}
	for _, h := range hashes {
		if err := m.fanOut(ctx, h); err != nil {
			return len(hashes), err
		}
	}
	return len(hashes), nil
}

/*
DenyToken revokes a signed token ahead of its natural expiry by
denylisting its jti. The entry lives exactly as long as the token
would have, plus the clock-skew window verifiers grant.

Parameters:
  - ctx: request context.
  - jti: the token id claim.
  - expiresAt: the token's natural expiry.

Returns:
  - error: non-nil on denylist write failure. An already-expired token
    is a no-op.
*/
func (m *Manager) DenyToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(m.clk.Now()) + constants.ClockSkew
	if ttl <= 0 {
		return nil
	}
	return m.revocations.DenyJTI(ctx, jti, ttl)
}

// ListActive returns the principal's live sessions, newest first.
func (m *Manager) ListActive(ctx context.Context, principalID string) ([]Session, error) {
	return m.store.ListActive(ctx, principalID, m.clk.Now())
}

// fanOut pushes a revoked hash into the cross-node list. The TTL is
// the full session lifetime so entries expire on their own.
func (m *Manager) fanOut(ctx context.Context, hash string) error {
	return m.revocations.MarkSession(ctx, hash, m.registry.SessionTTL())
}
