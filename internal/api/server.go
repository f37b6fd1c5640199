// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package api is the HTTP surface of the admission core.

Handlers here are deliberately thin: every request already passed the
admission pipeline, so a handler reads the bound request context,
calls one service, and writes one envelope. Route policies (class,
authorization check, quota kinds, audit flag) live next to the route
registration, nowhere else.
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nexioerp/nexio/internal/admission"
	"github.com/nexioerp/nexio/internal/audit"
	"github.com/nexioerp/nexio/internal/catalog"
	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/iam/authz"
	"github.com/nexioerp/nexio/internal/iam/session"
	"github.com/nexioerp/nexio/internal/jobs"
	"github.com/nexioerp/nexio/internal/obs"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/middleware"
	"github.com/nexioerp/nexio/internal/tenancy"
	"github.com/nexioerp/nexio/internal/waf"
)

// Server bundles the HTTP surface and its collaborators.
type Server struct {
	log      *slog.Logger
	pipeline *admission.Pipeline
	authz    *authz.Engine

	iamService *iam.Service
	sessions   *session.Manager
	auditStore audit.Store
	wafRules   waf.RuleStore
	wafEngine  *waf.Engine
	runner     *jobs.Runner
	catalog    *catalog.Service
	tenants    *tenancy.CachedStore

	pool  *pgxpool.Pool
	redis *goredis.Client
}

// NewServer wires the HTTP surface.
func NewServer(
	log *slog.Logger,
	pipeline *admission.Pipeline,
	authzEngine *authz.Engine,
	iamService *iam.Service,
	sessions *session.Manager,
	auditStore audit.Store,
	wafRules waf.RuleStore,
	wafEngine *waf.Engine,
	runner *jobs.Runner,
	catalogService *catalog.Service,
	tenants *tenancy.CachedStore,
	pool *pgxpool.Pool,
	redisClient *goredis.Client,
) *Server {
	return &Server{
		log:        log,
		pipeline:   pipeline,
		authz:      authzEngine,
		iamService: iamService,
		sessions:   sessions,
		auditStore: auditStore,
		wafRules:   wafRules,
		wafEngine:  wafEngine,
		runner:     runner,
		catalog:    catalogService,
		tenants:    tenants,
		pool:       pool,
		redis:      redisClient,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(s.log))
	r.Use(middleware.PanicRecovery(s.log))

	// Operational endpoints bypass admission entirely.
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	guard := s.pipeline.Guard

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(guard(admission.Policy{
				Action:     "auth.login",
				Class:      constants.ClassLogin,
				SkipTenant: true,
				Privileged: true,
			})).Post("/login", s.handleLogin)

			authed := admission.Policy{
				Class:      constants.ClassRead,
				Check:      s.authz.Authenticated(),
				SkipTenant: true,
			}
			r.With(guard(withAction(authed, "auth.logout", true))).
				Post("/logout", s.handleLogout)
			r.With(guard(withAction(authed, "auth.sessions.list", false))).
				Get("/sessions", s.handleListSessions)
			r.With(guard(withAction(authed, "auth.sessions.revoke", true))).
				Delete("/sessions/{hash}", s.handleRevokeSession)
			r.With(guard(withAction(authed, "auth.sessions.revoke_all", true))).
				Post("/sessions/revoke-all", s.handleRevokeAllSessions)
		})

		r.Route("/admin", func(r chi.Router) {
			admin := admission.Policy{
				Class:      constants.ClassAdmin,
				Check:      s.authz.Capability(iam.CapSuperAdmin),
				SkipTenant: true,
				Admin:      true,
				Privileged: true,
			}

			r.With(guard(withAction(admin, "admin.audit.search", true))).
				Get("/audit", s.handleAuditSearch)
			r.With(guard(withAction(admin, "admin.audit.export", true))).
				Get("/audit/export", s.handleAuditExport)

			r.With(guard(withAction(admin, "admin.waf.list", true))).
				Get("/waf/rules", s.handleWAFList)
			r.With(guard(withAction(admin, "admin.waf.create", true))).
				Post("/waf/rules", s.handleWAFCreate)
			r.With(guard(withAction(admin, "admin.waf.update", true))).
				Patch("/waf/rules/{id}", s.handleWAFUpdate)
			r.With(guard(withAction(admin, "admin.waf.delete", true))).
				Delete("/waf/rules/{id}", s.handleWAFDelete)

			// Change-notification callback: tenant records are owned
			// elsewhere, the core only drops its cached view.
			r.With(guard(withAction(admin, "admin.tenants.invalidate", true))).
				Post("/tenants/{id}/invalidate", s.handleTenantInvalidate)
		})

		r.Route("/jobs", func(r chi.Router) {
			jobsPolicy := admission.Policy{
				Class: constants.ClassJobs,
				Check: s.authz.Capability(iam.CapTenantAdmin, iam.CapBackoffice),
			}
			r.With(guard(mutating(withAction(jobsPolicy, "jobs.submit", true)))).
				Post("/", s.handleJobSubmit)
			r.With(guard(withAction(jobsPolicy, "jobs.status", false))).
				Get("/{jobID}", s.handleJobStatus)
			r.With(guard(mutating(withAction(jobsPolicy, "jobs.cancel", true)))).
				Post("/{jobID}/cancel", s.handleJobCancel)
		})

		r.Route("/products", func(r chi.Router) {
			r.With(guard(admission.Policy{
				Action:     "products.create",
				Class:      constants.ClassWrite,
				Check:      s.authz.Capability(iam.CapTenantAdmin, iam.CapBackoffice),
				Mutating:   true,
				QuotaKinds: []string{catalog.UsageKindProducts},
				Privileged: true,
			})).Post("/", s.handleProductCreate)

			r.With(guard(admission.Policy{
				Action: "products.list",
				Class:  constants.ClassRead,
				Check:  s.authz.Authenticated(),
			})).Get("/", s.handleProductList)

			r.With(guard(admission.Policy{
				Action: "products.get",
				Class:  constants.ClassRead,
				Check:  s.authz.Owner(),
				Owner:  s.productOwner,
			})).Get("/{productID}", s.handleProductGet)
		})
	})

	return r
}

// withAction derives a per-route policy from a shared template.
func withAction(p admission.Policy, action string, privileged bool) admission.Policy {
	p.Action = action
	p.Privileged = privileged
	return p
}

// mutating marks a derived policy as write traffic, so suspended
// tenants reject it while their reads keep flowing.
func mutating(p admission.Policy) admission.Policy {
	p.Mutating = true
	return p
}

// requestContext pulls the admission-bound context; the pipeline
// guarantees it exists on guarded routes.
func requestContext(r *http.Request) *admission.RequestContext {
	return admission.FromContext(r.Context())
}
