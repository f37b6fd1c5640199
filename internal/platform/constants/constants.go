// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, admission parameters, and cross-cutting keys that
are shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Admission: Clock skew, revocation propagation, endpoint classes.
  - Security: Token issuer and credential headers.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "nexio-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Admission

const (
	// ClockSkew is the tolerance applied when validating token time claims.
	ClockSkew = 30 * time.Second

	// MaxTokenTTL is the hard ceiling on issued access-token lifetimes.
	MaxTokenTTL = 60 * time.Minute

	// RevocationPropagationDelay is the upper bound between a session or
	// token revocation and its visibility in every admission pipeline.
	RevocationPropagationDelay = 2 * time.Second

	// SettingsRefreshInterval is how often the settings registry re-reads
	// the system.setting table into its snapshot.
	SettingsRefreshInterval = 30 * time.Second

	// WAFReloadInterval is how often the request screen re-reads its rule
	// set. Admin mutations reload immediately; this is the fallback.
	WAFReloadInterval = 30 * time.Second

	// TenantCacheTTL bounds how stale a cached tenant resolution can be.
	TenantCacheTTL = 60 * time.Second
)

// # HTTP Headers

const (
	HeaderAuthorization    = "Authorization"
	HeaderXSessionID       = "X-Session-Id"
	HeaderXRequestID       = "X-Request-Id"
	HeaderXRealIP          = "X-Real-IP"
	HeaderXForwardedFor    = "X-Forwarded-For"
	HeaderOrigin           = "Origin"
	HeaderXRateLimitRemain = "X-RateLimit-Remaining"
	HeaderXRateLimitReset  = "X-RateLimit-Reset"
	HeaderXGuestEmail      = "X-Guest-Email"
	HeaderXTenantID        = "X-Tenant-Id"
)

// # Endpoint Classes
//
// Every route is tagged with exactly one class. Rate-limit budgets are
// configured per class in the settings registry.

const (
	ClassLogin  = "LOGIN"
	ClassRead   = "READ"
	ClassWrite  = "WRITE"
	ClassAdmin  = "ADMIN"
	ClassJobs   = "JOBS"
	ClassPortal = "PORTAL"
	ClassPublic = "PUBLIC"
)

// # Security

const (
	// AuthIssuer is the standard 'iss' claim in access tokens.
	AuthIssuer = "nexio.app"

	// SessionIDBytes is the entropy (in bytes) of opaque session identifiers.
	// 32 bytes = 256 bits, comfortably above the 128-bit floor.
	SessionIDBytes = 32
)

// # JSON Field Identifiers

const (
	FieldSuccess   = "success"
	FieldData      = "data"
	FieldError     = "error"
	FieldErrorCode = "error_code"
	FieldMessage   = "message"
	FieldStatus    = "status"
	FieldChecks    = "checks"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixRevokedSession = "iam:revoked_session:"
	RedisPrefixDeniedJTI      = "iam:denied_jti:"
	RedisPrefixJobCooldown    = "jobs:cooldown:"
)

// # Audit

const (
	// AuditQueueCapacity bounds the in-memory audit queue. Overflow drops
	// the oldest event and increments a visible counter.
	AuditQueueCapacity = 4096

	// AuditBatchSize is the maximum events written per flush.
	AuditBatchSize = 128

	// AuditFlushInterval is the idle flush period of the background writer.
	AuditFlushInterval = 1 * time.Second

	// AuditMaxPageSize is the ceiling on audit search pages.
	AuditMaxPageSize = 200
)

// # Jobs

const (
	// JobMaxConcurrentPerTenant caps simultaneously running jobs per tenant.
	JobMaxConcurrentPerTenant = 3

	// JobLeaseDuration is how long a worker's liveness lease stays fresh.
	JobLeaseDuration = 30 * time.Second

	// JobLeaseRenewInterval is how often a running worker renews its lease.
	JobLeaseRenewInterval = 10 * time.Second

	// JobPollInterval is the worker pool's pending-job poll period.
	JobPollInterval = 2 * time.Second

	// SeedJobCooldown is the minimum interval between seed jobs per tenant.
	SeedJobCooldown = 5 * time.Minute
)
