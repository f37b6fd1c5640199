// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import "context"

// Store is the persistence surface of the tenancy layer.
type Store interface {
	// FindByID returns the tenant or apperr.NotFound.
	FindByID(ctx context.Context, id string) (*Tenant, error)

	// FindByCode returns the tenant behind a short code or apperr.NotFound.
	FindByCode(ctx context.Context, code string) (*Tenant, error)

	// TenantsOf returns the tenant ids a principal is affiliated with.
	TenantsOf(ctx context.Context, principalID string) ([]string, error)

	// PlanOf returns the plan of a tenant or apperr.NotFound.
	PlanOf(ctx context.Context, tenantID string) (*Plan, error)

	// Usage returns the current consumption counters of a tenant,
	// keyed by usage kind. Missing kinds count as zero.
	Usage(ctx context.Context, tenantID string, kinds []string) (map[string]int64, error)
}
