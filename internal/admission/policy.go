// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package admission

import (
	"net/http"

	"github.com/nexioerp/nexio/internal/iam/authz"
)

// OwnerResolver fetches the guarded resource's owner for ownership
// checks: the owning principal id and, when the resource was shared
// outward, the guest email it was shared with.
type OwnerResolver func(r *http.Request) (ownerPrincipalID, ownerGuestEmail string, err error)

// Policy is the per-route admission configuration.
type Policy struct {
	// Action names the operation in audit records, e.g. "orders.create".
	Action string

	// Class selects the rate-limit budget (constants.Class*).
	Class string

	// Check authorizes the caller. A nil Check admits anonymous
	// traffic; any non-nil Check implies authentication is required
	// unless the check itself handles the anonymous case (guest path).
	Check authz.Check

	// AllowAnonymous lets a request without credentials reach the
	// Check instead of failing early with AUTH_REQUIRED. Used by
	// guest-ownership routes.
	AllowAnonymous bool

	// SkipTenant serves the route outside any tenant scope (login,
	// health, platform admin surfaces).
	SkipTenant bool

	// AllowProvisioning admits requests against tenants still being
	// provisioned.
	AllowProvisioning bool

	// Mutating marks routes that write. Suspended tenants keep read
	// access; only mutating routes reject with TENANT_SUSPENDED.
	Mutating bool

	// QuotaKinds lists the usage kinds a mutating route consumes.
	QuotaKinds []string

	// Admin marks platform-administration routes so capability denials
	// surface as ADMIN_REQUIRED instead of INSUFFICIENT_PERMISSIONS.
	Admin bool

	// Privileged routes leave exactly one audit record per request.
	Privileged bool

	// Owner resolves the guarded resource's owner, nil when the route
	// has no single-resource ownership semantics.
	Owner OwnerResolver
}

// requiresAuth reports whether missing credentials reject the request
// before the authorization stage.
func (p Policy) requiresAuth() bool {
	return p.Check != nil && !p.AllowAnonymous
}
