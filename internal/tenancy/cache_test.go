// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/platform/clock"
)

func TestCachedStore_ServesFromCacheWithinTTL(t *testing.T) {
	inner := newFakeStore()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cached := NewCachedStore(inner, clk, 30*time.Second)
	ctx := context.Background()

	first, err := cached.FindByID(ctx, "tnt-1")
	require.NoError(t, err)

	// Mutate the backing row; the cache must keep serving the snapshot.
	inner.tenants["tnt-1"].Name = "Acme Renamed"

	again, err := cached.FindByID(ctx, "tnt-1")
	require.NoError(t, err)
	assert.Equal(t, first.Name, again.Name)

	clk.Advance(31 * time.Second)
	fresh, err := cached.FindByID(ctx, "tnt-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", fresh.Name)
}

func TestCachedStore_CodeSharesEntries(t *testing.T) {
	inner := newFakeStore()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cached := NewCachedStore(inner, clk, 30*time.Second)
	ctx := context.Background()

	_, err := cached.FindByID(ctx, "tnt-1")
	require.NoError(t, err)
	inner.tenants["tnt-1"].Name = "Acme Renamed"

	// The id lookup primed the code index too.
	byCode, err := cached.FindByCode(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", byCode.Name)
}

func TestCachedStore_Invalidate(t *testing.T) {
	inner := newFakeStore()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cached := NewCachedStore(inner, clk, 30*time.Second)
	ctx := context.Background()

	_, err := cached.FindByID(ctx, "tnt-1")
	require.NoError(t, err)

	inner.tenants["tnt-1"].State = StateSuspended
	cached.Invalidate("tnt-1")

	fresh, err := cached.FindByID(ctx, "tnt-1")
	require.NoError(t, err)
	assert.Equal(t, StateSuspended, fresh.State)

	byCode, err := cached.FindByCode(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, StateSuspended, byCode.State)
}
