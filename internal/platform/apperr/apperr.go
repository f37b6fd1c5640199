// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package apperr defines the centralized error handling framework for Nexio.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: The complete set of error codes the admission core emits.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the canonical error type for the Nexio API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries, which
// of the four authentication rejection kinds applied).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "AUTH_REQUIRED").
	Code string `json:"error_code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Authentication (401)

// AuthRequired creates a 401 [AppError] for requests with no usable credential.
func AuthRequired() *AppError {
	return &AppError{
		Code:       "AUTH_REQUIRED",
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// TokenExpired creates a 401 [AppError] for a signed credential past its expiry.
func TokenExpired() *AppError {
	return &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "Access token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InvalidToken creates a 401 [AppError] for a malformed or unverifiable token.
func InvalidToken() *AppError {
	return &AppError{
		Code:       "INVALID_TOKEN",
		Message:    "Access token is invalid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// SessionExpired creates a 401 [AppError] for an opaque session past its expiry.
func SessionExpired() *AppError {
	return &AppError{
		Code:       "SESSION_EXPIRED",
		Message:    "Session has expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// SessionInvalid creates a 401 [AppError] for an unknown or revoked session id.
func SessionInvalid() *AppError {
	return &AppError{
		Code:       "SESSION_INVALID",
		Message:    "Session is invalid",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// # Authorization (403)

// AdminRequired creates a 403 [AppError] for routes restricted to administrators.
func AdminRequired() *AppError {
	return &AppError{
		Code:       "ADMIN_REQUIRED",
		Message:    "Administrator privileges required",
		HTTPStatus: http.StatusForbidden,
	}
}

// InsufficientPermissions creates a 403 [AppError] for failed role or group checks.
func InsufficientPermissions() *AppError {
	return &AppError{
		Code:       "INSUFFICIENT_PERMISSIONS",
		Message:    "Insufficient permissions for this operation",
		HTTPStatus: http.StatusForbidden,
	}
}

// OwnershipViolation creates a 403 [AppError] for failed resource-ownership checks.
func OwnershipViolation() *AppError {
	return &AppError{
		Code:       "OWNERSHIP_VIOLATION",
		Message:    "You do not own this resource",
		HTTPStatus: http.StatusForbidden,
	}
}

// CORSViolation creates a 403 [AppError] for a disallowed cross-origin request.
func CORSViolation() *AppError {
	return &AppError{
		Code:       "CORS_VIOLATION",
		Message:    "Origin not allowed",
		HTTPStatus: http.StatusForbidden,
	}
}

// WAFBlocked creates a 403 [AppError] for a request matched by a blocking WAF rule.
func WAFBlocked() *AppError {
	return &AppError{
		Code:       "WAF_BLOCKED",
		Message:    "Request blocked by security policy",
		HTTPStatus: http.StatusForbidden,
	}
}

// WAFChallenge creates a 403 [AppError] for a request that must pass an
// additional verification step before being retried.
func WAFChallenge() *AppError {
	return &AppError{
		Code:       "WAF_CHALLENGE",
		Message:    "Additional verification required",
		HTTPStatus: http.StatusForbidden,
	}
}

// # Tenancy (403)

// TenantInvalid creates a 403 [AppError] when no single tenant can be bound.
func TenantInvalid(msg string) *AppError {
	return &AppError{
		Code:       "TENANT_INVALID",
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// TenantSuspended creates a 403 [AppError] when the bound tenant is suspended.
func TenantSuspended() *AppError {
	return &AppError{
		Code:       "TENANT_SUSPENDED",
		Message:    "Tenant is suspended",
		HTTPStatus: http.StatusForbidden,
	}
}

// # Quota & Subscription (403)

// QuotaExceeded creates a 403 [AppError] with a per-kind code, e.g.
// QUOTA_EXCEEDED_PRODUCTS for kind "products".
func QuotaExceeded(kind string, current, limit int64) *AppError {
	return &AppError{
		Code:       "QUOTA_EXCEEDED_" + upper(kind),
		Message:    fmt.Sprintf("Quota exceeded for %s (%d of %d used)", kind, current, limit),
		HTTPStatus: http.StatusForbidden,
	}
}

// SubscriptionInactive creates a 403 [AppError] for tenants without an active plan.
func SubscriptionInactive() *AppError {
	return &AppError{
		Code:       "SUBSCRIPTION_INACTIVE",
		Message:    "Subscription is not active",
		HTTPStatus: http.StatusForbidden,
	}
}

// # Throughput (429)

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// TooManyConcurrentJobs creates a 429 [AppError] for the per-tenant job cap.
func TooManyConcurrentJobs() *AppError {
	return &AppError{
		Code:       "TOO_MANY_CONCURRENT_JOBS",
		Message:    "Too many jobs are running for this tenant",
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Generic Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Job") // Returns "Job not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "SERVER_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for misconfiguration or maintenance.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVER_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// upper uppercases ASCII letters without pulling in strings for a hot path.
func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
