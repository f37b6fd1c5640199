// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/platform/apperr"
)

// fakeStore serves a fixed tenancy dataset.
type fakeStore struct {
	tenants      map[string]*Tenant
	affiliations map[string][]string
	plans        map[string]*Plan
	usage        map[string]map[string]int64

	usageCalls int
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*Tenant, error) {
	if t, ok := f.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, apperr.NotFound("tenant")
}

func (f *fakeStore) FindByCode(_ context.Context, code string) (*Tenant, error) {
	for _, t := range f.tenants {
		if t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("tenant")
}

func (f *fakeStore) TenantsOf(_ context.Context, principalID string) ([]string, error) {
	return f.affiliations[principalID], nil
}

func (f *fakeStore) PlanOf(_ context.Context, tenantID string) (*Plan, error) {
	t, ok := f.tenants[tenantID]
	if !ok {
		return nil, apperr.NotFound("plan")
	}
	if p, ok := f.plans[t.PlanID]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("plan")
}

func (f *fakeStore) Usage(_ context.Context, tenantID string, kinds []string) (map[string]int64, error) {
	f.usageCalls++
	out := make(map[string]int64, len(kinds))
	for _, k := range kinds {
		out[k] = f.usage[tenantID][k]
	}
	return out, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]*Tenant{
			"tnt-1": {ID: "tnt-1", Code: "acme", Name: "Acme", State: StateActive, PlanID: "plan-std", SubscriptionActive: true},
			"tnt-2": {ID: "tnt-2", Code: "globex", Name: "Globex", State: StateActive, PlanID: "plan-std", SubscriptionActive: true},
			"tnt-3": {ID: "tnt-3", Code: "initech", Name: "Initech", State: StateSuspended, PlanID: "plan-std", SubscriptionActive: true},
			"tnt-4": {ID: "tnt-4", Code: "umbrella", Name: "Umbrella", State: StateProvisioning, PlanID: "plan-std", SubscriptionActive: true},
		},
		affiliations: map[string][]string{
			"prin-single": {"tnt-1"},
			"prin-multi":  {"tnt-1", "tnt-2"},
		},
		plans: map[string]*Plan{},
		usage: map[string]map[string]int64{},
	}
}

func member() *iam.Principal {
	return &iam.Principal{ID: "prin-single", Capabilities: []iam.Capability{iam.CapBackoffice}}
}

func superAdmin() *iam.Principal {
	return &iam.Principal{ID: "prin-root", Capabilities: []iam.Capability{iam.CapSuperAdmin}}
}

func TestResolver_HintByIDAndCode(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())
	ctx := context.Background()

	res, err := r.Resolve(ctx, member(), "tnt-1", Access{})
	require.NoError(t, err)
	assert.Equal(t, "tnt-1", res.TenantID())

	res, err = r.Resolve(ctx, member(), "acme", Access{})
	require.NoError(t, err)
	assert.Equal(t, "tnt-1", res.TenantID())
}

func TestResolver_HintRequiresAffiliation(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())

	// prin-single is not affiliated with tnt-2: the hint is rejected,
	// never silently swapped for an affiliated tenant.
	_, err := r.Resolve(context.Background(), member(), "tnt-2", Access{})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_INVALID", ae.Code)
}

func TestResolver_UnknownHint(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())

	_, err := r.Resolve(context.Background(), superAdmin(), "no-such-tenant", Access{})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_INVALID", ae.Code)
}

func TestResolver_SingleAffiliationWithoutHint(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())

	res, err := r.Resolve(context.Background(), member(), "", Access{})
	require.NoError(t, err)
	assert.Equal(t, "tnt-1", res.TenantID())
}

func TestResolver_AmbiguousAffiliationRejected(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())
	multi := &iam.Principal{ID: "prin-multi", Capabilities: []iam.Capability{iam.CapBackoffice}}

	_, err := r.Resolve(context.Background(), multi, "", Access{})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_INVALID", ae.Code)

	// The same caller with an explicit binding succeeds.
	res, err := r.Resolve(context.Background(), multi, "tnt-2", Access{})
	require.NoError(t, err)
	assert.Equal(t, "tnt-2", res.TenantID())
}

func TestResolver_SuperAdminTenantless(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())

	res, err := r.Resolve(context.Background(), superAdmin(), "", Access{})
	require.NoError(t, err)
	assert.True(t, res.Tenantless)
	assert.Empty(t, res.TenantID())

	// A super-admin may still bind any tenant explicitly.
	res, err = r.Resolve(context.Background(), superAdmin(), "tnt-2", Access{})
	require.NoError(t, err)
	assert.Equal(t, "tnt-2", res.TenantID())
}

func TestResolver_NoAffiliation(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())
	orphan := &iam.Principal{ID: "prin-orphan", Capabilities: []iam.Capability{iam.CapBackoffice}}

	_, err := r.Resolve(context.Background(), orphan, "", Access{})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_INVALID", ae.Code)
}

func TestResolver_StateGating(t *testing.T) {
	store := newFakeStore()
	store.affiliations["prin-single"] = []string{"tnt-1", "tnt-3", "tnt-4"}
	r := NewResolver(store, slog.Default())
	ctx := context.Background()

	// Suspension blocks writes but leaves reads serviceable.
	_, err := r.Resolve(ctx, member(), "tnt-3", Access{Mutating: true})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_SUSPENDED", ae.Code)

	res, err := r.Resolve(ctx, member(), "tnt-3", Access{})
	require.NoError(t, err)
	assert.Equal(t, "tnt-3", res.TenantID())

	// Provisioning tenants only pass on provisioning-safe routes.
	_, err = r.Resolve(ctx, member(), "tnt-4", Access{})
	ae = apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_INVALID", ae.Code)

	res, err = r.Resolve(ctx, member(), "tnt-4", Access{AllowProvisioning: true})
	require.NoError(t, err)
	assert.Equal(t, "tnt-4", res.TenantID())
}

func TestResolver_AnonymousWithoutBinding(t *testing.T) {
	r := NewResolver(newFakeStore(), slog.Default())

	_, err := r.Resolve(context.Background(), nil, "", Access{})
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "TENANT_INVALID", ae.Code)
}
