// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package tenancy resolves the tenant of a request and enforces plan
limits.

# Resolution

Every admitted request runs in the scope of exactly one tenant, except
super-admin traffic which may be tenantless. Resolution never guesses:
when the caller's affiliations are ambiguous and no explicit binding
was presented, the request is rejected rather than routed to an
arbitrary tenant.
*/
package tenancy

import "time"

// State is the lifecycle state of a tenant.
type State string

const (
	// StateProvisioning marks a tenant still being set up. Only
	// provisioning-safe routes may run against it.
	StateProvisioning State = "provisioning"

	// StateActive is the normal serving state.
	StateActive State = "active"

	// StateSuspended blocks all traffic, typically for billing holds.
	StateSuspended State = "suspended"

	// StateClosed marks a tenant scheduled for deletion.
	StateClosed State = "closed"
)

// Tenant is one customer organisation.
type Tenant struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PlanID    string    `json:"plan_id"`
	CreatedAt time.Time `json:"created_at"`

	// SubscriptionActive gates every metered operation; quota limits
	// are only consulted when it holds.
	SubscriptionActive bool `json:"subscription_active"`
}

// Plan carries the quota limits of a subscription tier.
// A limit of zero means unmetered.
type Plan struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Limits map[string]int64 `json:"limits"`
}

// LimitFor returns the plan's limit for a usage kind. Unknown kinds
// are unmetered.
func (p *Plan) LimitFor(kind string) int64 {
	if p == nil {
		return 0
	}
	return p.Limits[kind]
}

// Affiliation links a principal to a tenant.
type Affiliation struct {
	PrincipalID string
	TenantID    string
}
