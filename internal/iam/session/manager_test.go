// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/sec"
	"github.com/nexioerp/nexio/internal/platform/settings"
)

func newTestManager(t *testing.T) (*Manager, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry, err := settings.NewRegistry(context.Background(), settings.Static{
		settings.KeySessionTTL: "24h",
	}, slog.Default())
	require.NoError(t, err)

	return NewManager(NewMemoryStore(), NewMemoryRevocationList(), registry, clk), clk
}

func TestManager_CreateAndLookup(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, created, err := m.Create(ctx, "prin-1", "203.0.113.9", "cli/1.0")
	require.NoError(t, err)
	assert.NotContains(t, id, created.Hash, "plaintext id must not embed the stored hash")
	assert.Equal(t, sec.HashToken(id), created.Hash)

	sess, err := m.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "prin-1", sess.PrincipalID)
	assert.Equal(t, "203.0.113.9", sess.IP)
}

func TestManager_LookupUnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Lookup(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestManager_LookupExpired(t *testing.T) {
	m, clk := newTestManager(t)
	ctx := context.Background()

	id, _, err := m.Create(ctx, "prin-1", "", "")
	require.NoError(t, err)

	clk.Advance(24*time.Hour + time.Second)

	_, err = m.Lookup(ctx, id)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestManager_RevokedLooksUnknown(t *testing.T) {
	// A revoked id must resolve exactly like a never-issued one.
	m, _ := newTestManager(t)
	ctx := context.Background()

	id, _, err := m.Create(ctx, "prin-1", "", "")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, id))

	_, revokedErr := m.Lookup(ctx, id)
	_, unknownErr := m.Lookup(ctx, "never-issued")
	assert.ErrorIs(t, revokedErr, ErrUnknown)
	assert.Equal(t, unknownErr, revokedErr)
}

func TestManager_RevocationFansOutBeforeStore(t *testing.T) {
	// The fan-out list alone must be enough to reject a session, even
	// when the authoritative row still looks live.
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry, err := settings.NewRegistry(context.Background(), settings.Static{
		settings.KeySessionTTL: "24h",
	}, slog.Default())
	require.NoError(t, err)

	store := NewMemoryStore()
	revocations := NewMemoryRevocationList()
	m := NewManager(store, revocations, registry, clk)
	ctx := context.Background()

	id, created, err := m.Create(ctx, "prin-1", "", "")
	require.NoError(t, err)

	require.NoError(t, revocations.MarkSession(ctx, created.Hash, time.Hour))

	_, err = m.Lookup(ctx, id)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestManager_DenyToken(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry, err := settings.NewRegistry(context.Background(), settings.Static{
		settings.KeySessionTTL: "24h",
	}, slog.Default())
	require.NoError(t, err)

	revocations := NewMemoryRevocationList()
	m := NewManager(NewMemoryStore(), revocations, registry, clk)
	ctx := context.Background()

	require.NoError(t, m.DenyToken(ctx, "jti-1", clk.Now().Add(15*time.Minute)))
	denied, err := revocations.JTIDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, denied)

	// An already-expired token has nothing left to revoke.
	require.NoError(t, m.DenyToken(ctx, "jti-2", clk.Now().Add(-time.Minute)))
	denied, err = revocations.JTIDenied(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestManager_RevokeAllFor(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, _, err := m.Create(ctx, "prin-1", "", "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	otherID, _, err := m.Create(ctx, "prin-2", "", "")
	require.NoError(t, err)

	n, err := m.RevokeAllFor(ctx, "prin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range ids {
		_, err := m.Lookup(ctx, id)
		assert.ErrorIs(t, err, ErrUnknown)
	}

	// Unrelated principals keep their sessions.
	_, err = m.Lookup(ctx, otherID)
	assert.NoError(t, err)
}

func TestManager_ListActive(t *testing.T) {
	m, clk := newTestManager(t)
	ctx := context.Background()

	first, _, err := m.Create(ctx, "prin-1", "", "")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, _, err = m.Create(ctx, "prin-1", "", "")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, first))

	active, err := m.ListActive(ctx, "prin-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestManager_IDEntropy(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id, _, err := m.Create(ctx, "prin-1", "", "")
		require.NoError(t, err)
		// 32 bytes base64url-encoded without padding.
		assert.Len(t, id, 43)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 50)
}
