// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package settings provides the hot-reloadable registry of request-time settings.

Unlike process configuration (environment variables parsed once at startup),
these values may change while the server runs: the CORS allow-list, rate-limit
class budgets, token lifetimes, and the dev-mode flag. The registry re-reads
its backing store on an interval and publishes an immutable snapshot, so a
change becomes visible to subsequent requests within at most the refresh
interval.

Architecture:

  - Loader: Abstracted source of key/value rows (PostgreSQL in production).
  - Snapshot: An atomically swapped, read-only map. Readers never lock.
  - Typed getters: Unknown keys return a typed "not configured" error so
    callers can degrade instead of crashing.
*/
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nexioerp/nexio/internal/platform/constants"
)

// # Setting Keys

const (
	KeyAllowedOrigins       = "cors.allowed_origins"
	KeyCORSMaxAge           = "cors.max_age_seconds"
	KeyCORSAllowCredentials = "cors.allow_credentials"
	KeyTokenTTL             = "auth.token_ttl"
	KeySessionTTL           = "auth.session_ttl"
	KeyDevMode              = "platform.dev_mode"
	KeyWAFSampleRate        = "waf.log_sample_rate"

	// rateLimitClassPrefix + class name holds a "N/W+burst" budget,
	// e.g. rate_limit.class.LOGIN = "5/60s+2".
	rateLimitClassPrefix = "rate_limit.class."
)

// NotConfiguredError reports a typed miss for an unknown or absent key.
type NotConfiguredError struct {
	Key string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("settings: key %q is not configured", e.Key)
}

// IsNotConfigured reports whether err is a [NotConfiguredError].
func IsNotConfigured(err error) bool {
	var nc *NotConfiguredError
	return errors.As(err, &nc)
}

// # Loader Contract

// Loader supplies the full key/value set for one snapshot.
type Loader interface {
	LoadAll(ctx context.Context) (map[string]string, error)
}

// Static is a fixed in-memory Loader, used by tests and local tooling.
type Static map[string]string

// LoadAll returns a copy of the static map.
func (s Static) LoadAll(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// # Registry

// Registry holds the current settings snapshot and refreshes it periodically.
type Registry struct {
	loader   Loader
	log      *slog.Logger
	interval time.Duration
	snapshot atomic.Value // map[string]string
}

// NewRegistry constructs a registry and loads the initial snapshot.
func NewRegistry(ctx context.Context, loader Loader, log *slog.Logger) (*Registry, error) {
	registry := &Registry{
		loader:   loader,
		log:      log,
		interval: constants.SettingsRefreshInterval,
	}
	if err := registry.Refresh(ctx); err != nil {
		return nil, err
	}
	return registry, nil
}

// Refresh reloads the snapshot from the backing store immediately.
func (r *Registry) Refresh(ctx context.Context) error {
	values, err := r.loader.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("settings: refresh failed: %w", err)
	}
	r.snapshot.Store(values)
	return nil
}

// Start launches the background refresh loop. It returns immediately and
// stops when ctx is cancelled. A failed refresh keeps the previous snapshot.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					r.log.Warn("settings_refresh_failed", slog.Any("error", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// current returns the live snapshot. Never nil after NewRegistry.
func (r *Registry) current() map[string]string {
	values, _ := r.snapshot.Load().(map[string]string)
	return values
}

// # Typed Getters

// String returns the raw value for key.
func (r *Registry) String(key string) (string, error) {
	value, ok := r.current()[key]
	if !ok {
		return "", &NotConfiguredError{Key: key}
	}
	return value, nil
}

// Bool parses the value for key as a boolean.
func (r *Registry) Bool(key string) (bool, error) {
	raw, err := r.String(key)
	if err != nil {
		return false, err
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("settings: key %q is not a boolean: %w", key, err)
	}
	return parsed, nil
}

// Int parses the value for key as an integer.
func (r *Registry) Int(key string) (int, error) {
	raw, err := r.String(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("settings: key %q is not an integer: %w", key, err)
	}
	return parsed, nil
}

// Duration parses the value for key as a Go duration ("15m", "60s").
func (r *Registry) Duration(key string) (time.Duration, error) {
	raw, err := r.String(key)
	if err != nil {
		return 0, err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("settings: key %q is not a duration: %w", key, err)
	}
	return parsed, nil
}

// # Domain Getters

// OriginPattern is one entry of the CORS allow-list. A leading "*." matches
// any subdomain ("*.nexio.app" allows "https://admin.nexio.app").
type OriginPattern string

// Match reports whether the given Origin header value satisfies the pattern.
func (p OriginPattern) Match(origin string) bool {
	pattern := string(p)
	if pattern == origin {
		return true
	}
	if scheme, host, ok := strings.Cut(pattern, "://"); ok && strings.HasPrefix(host, "*.") {
		oScheme, oHost, ok := strings.Cut(origin, "://")
		if !ok || oScheme != scheme {
			return false
		}
		return strings.HasSuffix(oHost, host[1:]) // host[1:] keeps the leading dot
	}
	return false
}

// AllowedOrigins returns the CORS allow-list. A missing key degrades to an
// empty list: no origin is allowed, nothing crashes.
func (r *Registry) AllowedOrigins() []OriginPattern {
	raw, err := r.String(KeyAllowedOrigins)
	if err != nil {
		return nil
	}
	parts := strings.Split(raw, ",")
	patterns := make([]OriginPattern, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, OriginPattern(trimmed))
		}
	}
	return patterns
}

// OriginAllowed reports whether origin matches any allow-list entry.
func (r *Registry) OriginAllowed(origin string) bool {
	for _, pattern := range r.AllowedOrigins() {
		if pattern.Match(origin) {
			return true
		}
	}
	return false
}

// CORSMaxAge returns the preflight cache lifetime in seconds (default 300).
func (r *Registry) CORSMaxAge() int {
	if v, err := r.Int(KeyCORSMaxAge); err == nil {
		return v
	}
	return 300
}

// CORSAllowCredentials reports whether credentialed requests are allowed.
func (r *Registry) CORSAllowCredentials() bool {
	v, err := r.Bool(KeyCORSAllowCredentials)
	return err == nil && v
}

// TokenTTL returns the configured access-token lifetime, clamped upstream
// by the token codec. Defaults to 15 minutes.
func (r *Registry) TokenTTL() time.Duration {
	if v, err := r.Duration(KeyTokenTTL); err == nil {
		return v
	}
	return 15 * time.Minute
}

// SessionTTL returns the opaque-session lifetime. Defaults to 30 days.
func (r *Registry) SessionTTL() time.Duration {
	if v, err := r.Duration(KeySessionTTL); err == nil {
		return v
	}
	return 30 * 24 * time.Hour
}

// DevMode reports whether rate-limit enforcement is disabled for loopback
// identities. Decisions are still recorded in dev mode.
func (r *Registry) DevMode() bool {
	v, err := r.Bool(KeyDevMode)
	return err == nil && v
}

// WAFSampleRate returns the probability [0,1] of recording a log-action
// WAF match. Block and challenge outcomes are always recorded
// regardless. Defaults to 1.
func (r *Registry) WAFSampleRate() float64 {
	raw, err := r.String(KeyWAFSampleRate)
	if err != nil {
		return 1
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 {
		return 1
	}
	if parsed > 1 {
		return 1
	}
	return parsed
}

// # Rate-Limit Classes

// RateLimitClass is the sliding-window budget for one endpoint class.
type RateLimitClass struct {
	// Limit is N: the maximum admits inside one window.
	Limit int
	// Window is W: the sliding window size.
	Window time.Duration
	// Burst is the extra allowance consumable at most once per window.
	Burst int
}

// RateLimitFor returns the budget for the named endpoint class.
//
// # Format
//
// Values are stored as "N/W+burst", e.g. "5/60s+2": five requests per
// sliding minute plus a one-shot burst of two.
func (r *Registry) RateLimitFor(class string) (RateLimitClass, error) {
	raw, err := r.String(rateLimitClassPrefix + class)
	if err != nil {
		return RateLimitClass{}, err
	}
	return ParseRateLimitClass(raw)
}

// ParseRateLimitClass parses the "N/W+burst" budget notation.
func ParseRateLimitClass(raw string) (RateLimitClass, error) {
	countPart, rest, ok := strings.Cut(raw, "/")
	if !ok {
		return RateLimitClass{}, fmt.Errorf("settings: invalid rate-limit budget %q", raw)
	}
	windowPart, burstPart, hasBurst := strings.Cut(rest, "+")

	limit, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || limit < 1 {
		return RateLimitClass{}, fmt.Errorf("settings: invalid rate-limit count in %q", raw)
	}

	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil || window <= 0 {
		return RateLimitClass{}, fmt.Errorf("settings: invalid rate-limit window in %q", raw)
	}

	burst := 0
	if hasBurst {
		burst, err = strconv.Atoi(strings.TrimSpace(burstPart))
		if err != nil || burst < 0 {
			return RateLimitClass{}, fmt.Errorf("settings: invalid rate-limit burst in %q", raw)
		}
	}

	return RateLimitClass{Limit: limit, Window: window, Burst: burst}, nil
}
