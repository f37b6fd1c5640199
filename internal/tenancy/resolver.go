// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"log/slog"

	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/platform/apperr"
)

// Resolution is the tenant scope a request runs in. Tenantless is set
// only for super-admin traffic that did not bind a tenant.
type Resolution struct {
	Tenant     *Tenant
	Tenantless bool
}

// TenantID returns the bound tenant id, empty for tenantless scope.
func (r *Resolution) TenantID() string {
	if r.Tenant == nil {
		return ""
	}
	return r.Tenant.ID
}

// Access describes how a request intends to use the tenant, which
// decides the tenant states allowed to serve it.
type Access struct {
	// AllowProvisioning admits tenants still being provisioned.
	AllowProvisioning bool

	// Mutating marks write traffic. Suspended tenants keep serving
	// reads; mutating requests against them get TENANT_SUSPENDED.
	Mutating bool
}

// Resolver binds each request to exactly one tenant, or to the
// tenantless scope for super-admins.
type Resolver struct {
	store Store
	log   *slog.Logger
}

// NewResolver wires the tenant resolver.
func NewResolver(store Store, log *slog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

/*
Resolve determines the tenant scope of a request.

The hint, when present, comes from an explicit client binding (header
or token claim) and is verified against the caller's affiliations
before being trusted: a hint naming a tenant the caller does not
belong to is rejected, not ignored. Without a hint, the caller's
affiliations decide; an ambiguous affiliation set is rejected rather
than resolved arbitrarily.

Parameters:
  - ctx: request context.
  - principal: authenticated caller, nil for anonymous traffic.
  - hint: tenant id or code claimed by the client; empty when absent.
  - access: how the request intends to use the tenant.

Returns:
  - *Resolution: the bound tenant, or the tenantless scope.
  - error: TENANT_INVALID, TENANT_SUSPENDED, or an infrastructure
    failure.
*/
func (r *Resolver) Resolve(ctx context.Context, principal *iam.Principal, hint string, access Access) (*Resolution, error) {
	// 1. Explicit binding wins, after verification.
	if hint != "" {
		tenant, err := r.lookupHint(ctx, hint)
		if err != nil {
			return nil, err
		}
		if err := r.verifyAffiliation(ctx, principal, tenant.ID); err != nil {
			return nil, err
		}
		if err := gateState(tenant, access); err != nil {
			return nil, err
		}
		return &Resolution{Tenant: tenant}, nil
	}

	// 2. No binding: super-admins run tenantless, nobody else may.
	if principal == nil {
		return nil, apperr.TenantInvalid("no tenant binding")
	}
	if principal.IsSuperAdmin() {
		return &Resolution{Tenantless: true}, nil
	}

	// 3. Fall back to affiliations, which must be unambiguous.
	ids, err := r.store.TenantsOf(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		return nil, apperr.TenantInvalid("no tenant affiliation")
	case 1:
		// Proceed below.
	default:
		r.log.Warn("ambiguous tenant affiliation rejected",
			"principal_id", principal.ID, "affiliations", len(ids))
		return nil, apperr.TenantInvalid("multiple tenant affiliations, binding required")
	}

	tenant, err := r.store.FindByID(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	if err := gateState(tenant, access); err != nil {
		return nil, err
	}
	return &Resolution{Tenant: tenant}, nil
}

// lookupHint resolves a client-supplied binding, trying the id form
// first and the short code second.
func (r *Resolver) lookupHint(ctx context.Context, hint string) (*Tenant, error) {
	tenant, err := r.store.FindByID(ctx, hint)
	if err == nil {
		return tenant, nil
	}
	if ae := apperr.As(err); ae == nil || ae.Code != "NOT_FOUND" {
		return nil, err
	}

	tenant, err = r.store.FindByCode(ctx, hint)
	if err == nil {
		return tenant, nil
	}
	if ae := apperr.As(err); ae != nil && ae.Code == "NOT_FOUND" {
		return nil, apperr.TenantInvalid("unknown tenant")
	}
	return nil, err
}

// verifyAffiliation checks that the caller may bind the hinted tenant.
func (r *Resolver) verifyAffiliation(ctx context.Context, principal *iam.Principal, tenantID string) error {
	if principal == nil {
		return apperr.TenantInvalid("tenant binding requires authentication")
	}
	if principal.IsSuperAdmin() {
		return nil
	}
	ids, err := r.store.TenantsOf(ctx, principal.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == tenantID {
			return nil
		}
	}
	r.log.Warn("tenant binding rejected, caller not affiliated",
		"principal_id", principal.ID, "tenant_id", tenantID)
	return apperr.TenantInvalid("not affiliated with tenant")
}

func gateState(t *Tenant, access Access) error {
	switch t.State {
	case StateActive:
		return nil
	case StateProvisioning:
		if access.AllowProvisioning {
			return nil
		}
		return apperr.TenantInvalid("tenant is still provisioning")
	case StateSuspended:
		// Suspension blocks writes only; read traffic still resolves
		// so the tenant's data stays reachable.
		if access.Mutating {
			return apperr.TenantSuspended()
		}
		return nil
	default:
		return apperr.TenantInvalid("tenant is closed")
	}
}
