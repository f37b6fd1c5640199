// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package authz evaluates access checks against an authenticated (or
anonymous) caller.

# Model

A Check is a predicate over the request Input. Checks compose with Any
and All; both combinators evaluate every branch rather than
short-circuiting, so side effects of a branch (guest throttling, audit
recording) happen whether or not another branch already settled the
answer.

# Guest ownership

The guest path lets an unauthenticated caller read a resource that was
shared with their email address. Because the email is caller-supplied,
the path doubles as an enumeration oracle; it is throttled per source
IP well below the public budget and every attempt is recorded.
*/
package authz

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/ratelimit"
)

// Decision is the outcome of one check evaluation.
type Decision struct {
	Allowed bool
	// Reason explains a denial; "ok" on success. Reasons are stable
	// strings fit for audit records, never for client responses.
	Reason string
}

func allow() Decision        { return Decision{Allowed: true, Reason: "ok"} }
func deny(r string) Decision { return Decision{Allowed: false, Reason: r} }

// Input carries everything a check may inspect about the request.
type Input struct {
	// Principal is nil for anonymous callers.
	Principal *iam.Principal

	// TenantID is the resolved tenant of the request, empty for
	// tenantless super-admin traffic.
	TenantID string

	// OwnerPrincipalID identifies the resource owner, when the route
	// guards a single resource.
	OwnerPrincipalID string

	// GuestEmail is the caller-supplied address on the guest path.
	GuestEmail string

	// OwnerGuestEmail is the address the resource was shared with.
	OwnerGuestEmail string

	// ClientIP throttles the guest path.
	ClientIP string
}

// Check is a single access predicate.
type Check func(ctx context.Context, in Input) Decision

// GroupResolver resolves a principal's permission groups.
type GroupResolver interface {
	GroupsOf(ctx context.Context, principalID string) ([]string, error)
}

// GuestAccess describes one guest-ownership attempt, for the audit trail.
type GuestAccess struct {
	Email     string
	ClientIP  string
	Allowed   bool
	Reason    string
	Timestamp time.Time
}

// Recorder receives guest-path attempts. The audit sink implements it.
type Recorder interface {
	RecordGuestAccess(ctx context.Context, access GuestAccess)
}

// Engine builds checks bound to its group resolver, guest throttle and
// audit recorder.
type Engine struct {
	groups   GroupResolver
	guests   *ratelimit.GuestGuard
	recorder Recorder
	clk      clock.Clock
	log      *slog.Logger
}

// NewEngine wires the authorization engine.
func NewEngine(groups GroupResolver, guests *ratelimit.GuestGuard, recorder Recorder, clk clock.Clock, log *slog.Logger) *Engine {
	return &Engine{groups: groups, guests: guests, recorder: recorder, clk: clk, log: log}
}

// Authenticated allows any signed-in principal, regardless of
// capabilities. Routes like session listing need identity, not roles.
func (e *Engine) Authenticated() Check {
	return func(_ context.Context, in Input) Decision {
		if in.Principal == nil {
			return deny("unauthenticated")
		}
		return allow()
	}
}

// Capability allows principals carrying at least one listed capability.
func (e *Engine) Capability(capabilities ...iam.Capability) Check {
	return func(_ context.Context, in Input) Decision {
		if in.Principal == nil {
			return deny("unauthenticated")
		}
		if in.Principal.HasAny(capabilities...) {
			return allow()
		}
		return deny("capability_missing")
	}
}

// Group allows principals belonging to the named permission group,
// directly or through nesting. Resolver failures deny.
func (e *Engine) Group(name string) Check {
	return func(ctx context.Context, in Input) Decision {
		if in.Principal == nil {
			return deny("unauthenticated")
		}
		groups, err := e.groups.GroupsOf(ctx, in.Principal.ID)
		if err != nil {
			e.log.Error("group resolution failed, denying",
				"principal_id", in.Principal.ID, "group", name, "error", err)
			return deny("group_lookup_failed")
		}
		for _, g := range groups {
			if g == name {
				return allow()
			}
		}
		return deny("group_missing")
	}
}

// Owner allows the principal that owns the guarded resource.
// Super-admins pass ownership checks unconditionally, and a tenant
// admin owns everything inside the resolved tenant.
func (e *Engine) Owner() Check {
	return func(_ context.Context, in Input) Decision {
		if in.Principal == nil {
			return deny("unauthenticated")
		}
		if in.Principal.IsSuperAdmin() {
			return allow()
		}
		if in.OwnerPrincipalID != "" && in.Principal.ID == in.OwnerPrincipalID {
			return allow()
		}
		if in.TenantID != "" && in.Principal.HasAny(iam.CapTenantAdmin) {
			return allow()
		}
		return deny("not_owner")
	}
}

// GuestOwner allows an anonymous caller whose supplied email matches
// the address the resource was shared with. Every attempt, allowed or
// not, is throttled per IP and recorded.
func (e *Engine) GuestOwner() Check {
	return func(ctx context.Context, in Input) Decision {
		if in.GuestEmail == "" {
			return deny("guest_email_missing")
		}

		d := e.evaluateGuest(in)
		e.recorder.RecordGuestAccess(ctx, GuestAccess{
			Email:     in.GuestEmail,
			ClientIP:  in.ClientIP,
			Allowed:   d.Allowed,
			Reason:    d.Reason,
			Timestamp: e.clk.Now(),
		})
		return d
	}
}

func (e *Engine) evaluateGuest(in Input) Decision {
	// Throttle before comparing, so mismatches burn budget too.
	if !e.guests.Allow(in.ClientIP) {
		return deny("guest_rate_limited")
	}
	if in.OwnerGuestEmail == "" ||
		!strings.EqualFold(strings.TrimSpace(in.GuestEmail), in.OwnerGuestEmail) {
		return deny("guest_email_mismatch")
	}
	return allow()
}

// Any passes when at least one branch passes. All branches run.
func Any(checks ...Check) Check {
	return func(ctx context.Context, in Input) Decision {
		result := deny("no_check_passed")
		for _, c := range checks {
			if d := c(ctx, in); d.Allowed {
				result = d
			} else if !result.Allowed {
				result = d
			}
		}
		return result
	}
}

// All passes when every branch passes. All branches run.
func All(checks ...Check) Check {
	return func(ctx context.Context, in Input) Decision {
		result := allow()
		for _, c := range checks {
			if d := c(ctx, in); !d.Allowed && result.Allowed {
				result = d
			}
		}
		if len(checks) == 0 {
			return deny("no_checks_configured")
		}
		return result
	}
}
