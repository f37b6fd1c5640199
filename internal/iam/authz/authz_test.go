// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package authz

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/ratelimit"
)

type fakeGroups struct {
	groups map[string][]string
	err    error
}

func (f *fakeGroups) GroupsOf(_ context.Context, principalID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.groups[principalID], nil
}

type captureRecorder struct {
	mu       sync.Mutex
	accesses []GuestAccess
}

func (c *captureRecorder) RecordGuestAccess(_ context.Context, a GuestAccess) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accesses = append(c.accesses, a)
}

func newTestEngine(groups *fakeGroups) (*Engine, *captureRecorder) {
	rec := &captureRecorder{}
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewEngine(groups, ratelimit.NewGuestGuard(), rec, clk, slog.Default()), rec
}

func backofficePrincipal() *iam.Principal {
	return &iam.Principal{ID: "prin-1", Capabilities: []iam.Capability{iam.CapBackoffice}}
}

func TestCapability(t *testing.T) {
	e, _ := newTestEngine(&fakeGroups{})
	check := e.Capability(iam.CapTenantAdmin, iam.CapBackoffice)

	assert.True(t, check(context.Background(), Input{Principal: backofficePrincipal()}).Allowed)

	d := check(context.Background(), Input{Principal: &iam.Principal{ID: "p", Capabilities: []iam.Capability{iam.CapPortalAccountant}}})
	assert.False(t, d.Allowed)
	assert.Equal(t, "capability_missing", d.Reason)

	d = check(context.Background(), Input{})
	assert.False(t, d.Allowed)
	assert.Equal(t, "unauthenticated", d.Reason)
}

func TestGroup(t *testing.T) {
	e, _ := newTestEngine(&fakeGroups{groups: map[string][]string{
		"prin-1": {"billing", "billing-admins"},
	}})

	assert.True(t, e.Group("billing-admins")(context.Background(), Input{Principal: backofficePrincipal()}).Allowed)
	assert.False(t, e.Group("hr")(context.Background(), Input{Principal: backofficePrincipal()}).Allowed)
}

func TestGroup_ResolverFailureDenies(t *testing.T) {
	e, _ := newTestEngine(&fakeGroups{err: errors.New("store down")})

	d := e.Group("billing")(context.Background(), Input{Principal: backofficePrincipal()})
	assert.False(t, d.Allowed)
	assert.Equal(t, "group_lookup_failed", d.Reason)
}

func TestOwner(t *testing.T) {
	e, _ := newTestEngine(&fakeGroups{})
	check := e.Owner()

	assert.True(t, check(context.Background(), Input{
		Principal:        backofficePrincipal(),
		OwnerPrincipalID: "prin-1",
	}).Allowed)

	d := check(context.Background(), Input{
		Principal:        backofficePrincipal(),
		OwnerPrincipalID: "prin-2",
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, "not_owner", d.Reason)

	// Super-admins bypass ownership entirely.
	admin := &iam.Principal{ID: "root", Capabilities: []iam.Capability{iam.CapSuperAdmin}}
	assert.True(t, check(context.Background(), Input{
		Principal:        admin,
		OwnerPrincipalID: "prin-2",
	}).Allowed)
}

func TestOwner_TenantAdminOwnsTenantResources(t *testing.T) {
	e, _ := newTestEngine(&fakeGroups{})
	check := e.Owner()
	tenantAdmin := &iam.Principal{ID: "prin-9", Capabilities: []iam.Capability{iam.CapTenantAdmin}}

	// A tenant admin owns every resource inside the resolved tenant,
	// including ones created by other principals.
	assert.True(t, check(context.Background(), Input{
		Principal:        tenantAdmin,
		TenantID:         "tnt-1",
		OwnerPrincipalID: "prin-2",
	}).Allowed)

	// Outside any tenant scope the capability grants nothing.
	d := check(context.Background(), Input{
		Principal:        tenantAdmin,
		OwnerPrincipalID: "prin-2",
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, "not_owner", d.Reason)
}

func TestGuestOwner_MatchAndRecord(t *testing.T) {
	e, rec := newTestEngine(&fakeGroups{})
	check := e.GuestOwner()

	d := check(context.Background(), Input{
		GuestEmail:      "Guest@Acme.Test",
		OwnerGuestEmail: "guest@acme.test",
		ClientIP:        "203.0.113.1",
	})
	assert.True(t, d.Allowed)

	require.Len(t, rec.accesses, 1)
	assert.True(t, rec.accesses[0].Allowed)
	assert.Equal(t, "203.0.113.1", rec.accesses[0].ClientIP)
}

func TestGuestOwner_MismatchStillRecorded(t *testing.T) {
	e, rec := newTestEngine(&fakeGroups{})
	check := e.GuestOwner()

	d := check(context.Background(), Input{
		GuestEmail:      "stranger@evil.test",
		OwnerGuestEmail: "guest@acme.test",
		ClientIP:        "203.0.113.1",
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, "guest_email_mismatch", d.Reason)

	require.Len(t, rec.accesses, 1)
	assert.False(t, rec.accesses[0].Allowed)
	assert.Equal(t, "guest_email_mismatch", rec.accesses[0].Reason)
}

func TestGuestOwner_Throttled(t *testing.T) {
	e, rec := newTestEngine(&fakeGroups{})
	check := e.GuestOwner()

	in := Input{
		GuestEmail:      "guest@acme.test",
		OwnerGuestEmail: "guest@acme.test",
		ClientIP:        "203.0.113.7",
	}

	// Burn through the per-IP burst; the correct email stops working
	// once the throttle trips.
	denied := false
	for i := 0; i < 10; i++ {
		if d := check(context.Background(), in); !d.Allowed {
			assert.Equal(t, "guest_rate_limited", d.Reason)
			denied = true
			break
		}
	}
	assert.True(t, denied, "throttle never tripped")
	assert.NotEmpty(t, rec.accesses, "throttled attempts must still be recorded")
}

func TestGuestOwner_MissingEmail(t *testing.T) {
	e, rec := newTestEngine(&fakeGroups{})

	d := e.GuestOwner()(context.Background(), Input{ClientIP: "203.0.113.1"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "guest_email_missing", d.Reason)
	// Nothing presented, nothing recorded.
	assert.Empty(t, rec.accesses)
}

func TestCombinators(t *testing.T) {
	pass := Check(func(context.Context, Input) Decision { return Decision{Allowed: true, Reason: "ok"} })
	fail := Check(func(context.Context, Input) Decision { return Decision{Allowed: false, Reason: "nope"} })

	assert.True(t, Any(fail, pass)(context.Background(), Input{}).Allowed)
	assert.False(t, Any(fail, fail)(context.Background(), Input{}).Allowed)
	assert.True(t, All(pass, pass)(context.Background(), Input{}).Allowed)
	assert.False(t, All(pass, fail)(context.Background(), Input{}).Allowed)
	assert.False(t, All()(context.Background(), Input{}).Allowed)
}

func TestCombinators_EvaluateEveryBranch(t *testing.T) {
	// A passing sibling must not suppress the side effects of other
	// branches; the guest recorder relies on this.
	var calls int
	counting := Check(func(context.Context, Input) Decision {
		calls++
		return Decision{Allowed: false, Reason: "nope"}
	})
	pass := Check(func(context.Context, Input) Decision { return Decision{Allowed: true, Reason: "ok"} })

	Any(pass, counting, counting)(context.Background(), Input{})
	assert.Equal(t, 2, calls)

	calls = 0
	All(counting, counting, pass)(context.Background(), Input{})
	assert.Equal(t, 2, calls)
}
