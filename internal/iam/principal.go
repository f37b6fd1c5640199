// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package iam defines the identity model shared by the admission core.

It holds the Principal (the authenticated subject of a request) and the
capability taxonomy. Principals are created and managed by external
collaborators; the core only reads them.
*/
package iam

// Capability is a role tag carried by a principal.
type Capability string

const (
	// CapSuperAdmin grants unrestricted, tenantless platform access.
	CapSuperAdmin Capability = "super_admin"

	// CapTenantAdmin grants administrative access within one tenant.
	CapTenantAdmin Capability = "tenant_admin"

	// CapBackoffice grants day-to-day operational access within a tenant.
	CapBackoffice Capability = "backoffice"

	// CapPortalAccountant grants read access to the accounting portal.
	CapPortalAccountant Capability = "portal_accountant"

	// CapPublic is the implicit capability of unauthenticated callers.
	CapPublic Capability = "public"
)

// Principal is the authenticated subject of a request (person or service).
type Principal struct {
	// ID is stable across sessions and tokens.
	ID string `json:"id"`

	DisplayName string `json:"display_name"`

	// Email is the contact address, used by the guest-ownership path.
	Email string `json:"email,omitempty"`

	// Capabilities holds the principal's role tags.
	Capabilities []Capability `json:"capabilities"`

	MFAEnabled bool `json:"mfa_enabled"`

	// TenantHint is the tenant binding claimed by a signed credential.
	// The tenant resolver verifies it against the affiliation store
	// before trusting it.
	TenantHint string `json:"-"`
}

// Has reports whether the principal carries the given capability.
func (p *Principal) Has(capability Capability) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasAny reports whether the principal carries at least one listed capability.
func (p *Principal) HasAny(capabilities ...Capability) bool {
	for _, c := range capabilities {
		if p.Has(c) {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the principal is a tenantless platform admin.
func (p *Principal) IsSuperAdmin() bool {
	return p.Has(CapSuperAdmin)
}

// CapabilityStrings returns the capability tags as plain strings,
// in token-claim form.
func (p *Principal) CapabilityStrings() []string {
	out := make([]string, len(p.Capabilities))
	for i, c := range p.Capabilities {
		out[i] = string(c)
	}
	return out
}

// CapabilitiesFromStrings converts token-claim strings back to typed tags.
func CapabilitiesFromStrings(raw []string) []Capability {
	out := make([]Capability, len(raw))
	for i, s := range raw {
		out[i] = Capability(s)
	}
	return out
}
