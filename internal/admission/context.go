// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package admission runs every request through the admission pipeline
before any business handler sees it:

	received -> cors_checked -> waf_passed -> authenticated
	         -> tenant_bound -> authorized -> rate_admitted
	         -> quota_ok     -> handed_off

A rejection at any stage skips the rest, surfaces a typed error
envelope, and, for privileged routes, leaves exactly one audit record
either way.
*/
package admission

import (
	"context"
	"time"

	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/iam/credential"
	"github.com/nexioerp/nexio/internal/platform/ctxkey"
	"github.com/nexioerp/nexio/internal/tenancy"
)

// RequestContext is what the pipeline hands to the business handler.
type RequestContext struct {
	RequestID string

	// Principal is nil on public routes served anonymously.
	Principal *iam.Principal

	// Method records which credential family authenticated the caller.
	Method credential.Method

	// TokenID and TokenExpiresAt identify the signed token behind this
	// request, empty for session-backed and anonymous traffic. Logout
	// uses them to denylist the jti for its remaining life.
	TokenID        string
	TokenExpiresAt time.Time

	// Resolution is the bound tenant scope; nil on public routes that
	// skip tenant binding.
	Resolution *tenancy.Resolution

	// RateRemaining and RateReset mirror the response headers.
	RateRemaining int
	RateReset     time.Time

	ClientIP string
}

// TenantID returns the bound tenant id, empty when tenantless or unbound.
func (rc *RequestContext) TenantID() string {
	if rc.Resolution == nil {
		return ""
	}
	return rc.Resolution.TenantID()
}

// PrincipalID returns the caller's id, empty for anonymous requests.
func (rc *RequestContext) PrincipalID() string {
	if rc.Principal == nil {
		return ""
	}
	return rc.Principal.ID
}

// WithRequestContext stores the admission result on the context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxkey.KeyAdmission, rc)
}

// FromContext returns the admission result, or nil on a request that
// never passed the pipeline (health checks, preflight).
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(ctxkey.KeyAdmission).(*RequestContext)
	return rc
}
