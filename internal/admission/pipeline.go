// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package admission

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/nexioerp/nexio/internal/audit"
	"github.com/nexioerp/nexio/internal/iam/authz"
	"github.com/nexioerp/nexio/internal/iam/credential"
	"github.com/nexioerp/nexio/internal/obs"
	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/ctxutil"
	"github.com/nexioerp/nexio/internal/platform/middleware"
	"github.com/nexioerp/nexio/internal/platform/respond"
	"github.com/nexioerp/nexio/internal/platform/settings"
	"github.com/nexioerp/nexio/internal/ratelimit"
	"github.com/nexioerp/nexio/internal/tenancy"
	"github.com/nexioerp/nexio/internal/waf"
)

// stage names, used in metrics and audit metadata.
const (
	stageCORS       = "cors"
	stageWAF        = "waf"
	stageAuthn      = "authn"
	stageTenant     = "tenant"
	stageAuthz      = "authz"
	stageRate       = "rate"
	stageQuota      = "quota"
	stageHandoff    = "handoff"
	outcomeAllowed  = "allowed"
	outcomeRejected = "rejected"
)

// Auditor receives the per-request admission record. The audit sink
// implements it.
type Auditor interface {
	Record(e audit.Event)
}

// Pipeline wires the admission stages. One instance serves all routes;
// per-route behaviour comes from the Policy.
type Pipeline struct {
	registry *settings.Registry
	screen   *waf.Engine
	verifier *credential.Verifier
	resolver *tenancy.Resolver
	quota    *tenancy.QuotaEvaluator
	limiter  *ratelimit.Limiter
	sink     Auditor
	clk      clock.Clock
	log      *slog.Logger
}

// NewPipeline wires the admission pipeline.
func NewPipeline(
	registry *settings.Registry,
	screen *waf.Engine,
	verifier *credential.Verifier,
	resolver *tenancy.Resolver,
	quota *tenancy.QuotaEvaluator,
	limiter *ratelimit.Limiter,
	sink Auditor,
	clk clock.Clock,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		registry: registry,
		screen:   screen,
		verifier: verifier,
		resolver: resolver,
		quota:    quota,
		limiter:  limiter,
		sink:     sink,
		clk:      clk,
		log:      log,
	}
}

// Guard returns the admission middleware for one route policy.
func (p *Pipeline) Guard(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.admit(w, r, policy, next)
		})
	}
}

func (p *Pipeline) admit(w http.ResponseWriter, r *http.Request, policy Policy, next http.Handler) {
	rc := &RequestContext{
		RequestID: ctxutil.GetRequestID(r.Context()),
		ClientIP:  middleware.RealIP(r),
	}

	// 1. CORS. Headers only appear for allow-listed origins; a request
	//    from elsewhere gets the normal response without them, so the
	//    allow-list itself leaks nothing.
	p.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		// Preflight ends here and never reaches authentication.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// 2. WAF, failing closed when screening is impossible.
	verdict, err := p.screen.Evaluate(r.Context(), r, rc.ClientIP, rc.RequestID)
	if err != nil {
		p.reject(w, r, rc, policy, stageWAF, apperr.ServiceUnavailable("request screening unavailable"))
		return
	}
	if verdict.Blocked() {
		if verdict.Action == waf.ActionChallenge {
			p.reject(w, r, rc, policy, stageWAF, apperr.WAFChallenge())
			return
		}
		p.reject(w, r, rc, policy, stageWAF, apperr.WAFBlocked())
		return
	}

	// 3. Authentication.
	outcome, err := p.verifier.Verify(r.Context(), r)
	if err != nil {
		p.reject(w, r, rc, policy, stageAuthn, apperr.Internal(err))
		return
	}
	rc.Method = outcome.Method
	switch outcome.Status {
	case credential.StatusAuthenticated:
		rc.Principal = outcome.Principal
		rc.TokenID = outcome.TokenID
		rc.TokenExpiresAt = outcome.TokenExpiresAt
	case credential.StatusNoCredential:
		if policy.requiresAuth() {
			p.reject(w, r, rc, policy, stageAuthn, apperr.AuthRequired())
			return
		}
	case credential.StatusTokenExpired:
		p.reject(w, r, rc, policy, stageAuthn, apperr.TokenExpired())
		return
	case credential.StatusTokenMalformed:
		p.reject(w, r, rc, policy, stageAuthn, apperr.InvalidToken())
		return
	case credential.StatusSessionExpired:
		p.reject(w, r, rc, policy, stageAuthn, apperr.SessionExpired())
		return
	default:
		p.reject(w, r, rc, policy, stageAuthn, apperr.SessionInvalid())
		return
	}

	// 4. Tenant binding.
	if !policy.SkipTenant {
		hint := r.Header.Get(constants.HeaderXTenantID)
		if hint == "" && rc.Principal != nil {
			hint = rc.Principal.TenantHint
		}
		resolution, err := p.resolver.Resolve(r.Context(), rc.Principal, hint, tenancy.Access{
			AllowProvisioning: policy.AllowProvisioning,
			Mutating:          policy.Mutating,
		})
		if err != nil {
			p.reject(w, r, rc, policy, stageTenant, err)
			return
		}
		rc.Resolution = resolution
	}

	// 5. Authorization.
	if policy.Check != nil {
		in := authz.Input{
			Principal:  rc.Principal,
			TenantID:   rc.TenantID(),
			GuestEmail: r.Header.Get(constants.HeaderXGuestEmail),
			ClientIP:   rc.ClientIP,
		}
		if policy.Owner != nil {
			ownerID, guestEmail, err := policy.Owner(r)
			if err != nil {
				p.reject(w, r, rc, policy, stageAuthz, err)
				return
			}
			in.OwnerPrincipalID = ownerID
			in.OwnerGuestEmail = guestEmail
		}
		if decision := policy.Check(r.Context(), in); !decision.Allowed {
			p.reject(w, r, rc, policy, stageAuthz, denialError(decision, policy.Admin))
			return
		}
	}

	// 6. Rate admission.
	if rejection := p.admitRate(w, rc, policy); rejection != nil {
		p.reject(w, r, rc, policy, stageRate, rejection)
		return
	}

	// 7. Quota, mutating routes only.
	if len(policy.QuotaKinds) > 0 && rc.Resolution != nil {
		if err := p.quota.Evaluate(r.Context(), rc.Resolution.Tenant, policy.QuotaKinds...); err != nil {
			p.reject(w, r, rc, policy, stageQuota, err)
			return
		}
	}

	// 8. Handoff.
	obs.AdmissionDecisions.WithLabelValues(stageHandoff, outcomeAllowed).Inc()
	p.audit(r, rc, policy, stageHandoff, nil)
	next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
}

// applyCORS stamps response headers for allow-listed origins.
func (p *Pipeline) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(constants.HeaderOrigin)
	if origin == "" {
		return
	}
	w.Header().Add("Vary", constants.HeaderOrigin)
	if !p.registry.OriginAllowed(origin) {
		return
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	if p.registry.CORSAllowCredentials() {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if r.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers",
			"Authorization, Content-Type, X-Session-Id, X-Tenant-Id, X-Guest-Email, X-Request-Id")
		h.Set("Access-Control-Max-Age", strconv.Itoa(p.registry.CORSMaxAge()))
	}
}

// admitRate runs the sliding-window check. A missing budget for the
// class and dev-mode loopback traffic both admit; decisions are still
// computed and surfaced in headers either way.
func (p *Pipeline) admitRate(w http.ResponseWriter, rc *RequestContext, policy Policy) error {
	class := policy.Class
	if class == "" {
		class = constants.ClassRead
	}

	budget, err := p.registry.RateLimitFor(class)
	if err != nil {
		// No budget configured for this class: fail open.
		if !settings.IsNotConfigured(err) {
			p.log.Error("rate budget unreadable, admitting", "class", class, "error", err)
		}
		return nil
	}

	identity := rc.PrincipalID()
	if identity == "" {
		identity = rc.ClientIP
	}

	decision := p.limiter.Check(ratelimit.Key{Identity: identity, Class: class}, budget)
	rc.RateRemaining = decision.Remaining
	rc.RateReset = decision.ResetAt
	w.Header().Set(constants.HeaderXRateLimitRemain, strconv.Itoa(decision.Remaining))
	w.Header().Set(constants.HeaderXRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if decision.Allowed {
		return nil
	}
	if p.registry.DevMode() && isLoopback(rc.ClientIP) {
		p.log.Debug("rate limit bypassed for loopback in dev mode",
			"identity", identity, "class", class)
		return nil
	}

	obs.RateLimitRejections.WithLabelValues(class).Inc()
	retryAfter := int(decision.ResetAt.Sub(p.clk.Now()).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return apperr.RateLimited(retryAfter)
}

// reject ends the request with a typed envelope and, for privileged
// routes, the single audit record.
func (p *Pipeline) reject(w http.ResponseWriter, r *http.Request, rc *RequestContext, policy Policy, stage string, err error) {
	obs.AdmissionDecisions.WithLabelValues(stage, outcomeRejected).Inc()
	p.audit(r, rc, policy, stage, err)
	respond.Error(w, r, err)
}

// audit emits the per-request record for privileged routes. Called
// exactly once per admitted or rejected request; never for preflight.
func (p *Pipeline) audit(r *http.Request, rc *RequestContext, policy Policy, stage string, rejection error) {
	if !policy.Privileged {
		return
	}

	event := audit.Event{
		RequestID:   rc.RequestID,
		TenantID:    rc.TenantID(),
		PrincipalID: rc.PrincipalID(),
		Category:    "admission",
		Severity:    audit.SeverityInfo,
		Action:      policy.Action,
		Outcome:     audit.OutcomeAllowed,
		ClientIP:    rc.ClientIP,
		Method:      r.Method,
		Path:        r.URL.Path,
		Metadata:    map[string]any{"stage": stage},
	}
	if rejection != nil {
		event.Outcome = audit.OutcomeDenied
		event.Severity = audit.SeverityWarning
		if ae := apperr.As(rejection); ae != nil {
			event.ErrorCode = ae.Code
		} else {
			event.ErrorCode = "SERVER_ERROR"
		}
	}
	p.sink.Record(event)
}

// denialError maps an authorization denial onto the error taxonomy.
func denialError(d authz.Decision, admin bool) error {
	switch d.Reason {
	case "unauthenticated":
		return apperr.AuthRequired()
	case "not_owner", "guest_email_mismatch", "guest_email_missing":
		return apperr.OwnershipViolation()
	case "guest_rate_limited":
		return apperr.RateLimited(60)
	default:
		if admin {
			return apperr.AdminRequired()
		}
		return apperr.InsufficientPermissions()
	}
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
