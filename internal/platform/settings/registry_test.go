// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package settings_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/platform/settings"
)

func newRegistry(t *testing.T, values settings.Static) *settings.Registry {
	t.Helper()
	registry, err := settings.NewRegistry(context.Background(), values, slog.Default())
	require.NoError(t, err)
	return registry
}

func TestRegistry_TypedGetters(t *testing.T) {
	registry := newRegistry(t, settings.Static{
		"auth.token_ttl":         "20m",
		"platform.dev_mode":      "true",
		"cors.max_age_seconds":   "600",
		"cors.allow_credentials": "true",
	})

	assert.Equal(t, 20*time.Minute, registry.TokenTTL())
	assert.True(t, registry.DevMode())
	assert.Equal(t, 600, registry.CORSMaxAge())
	assert.True(t, registry.CORSAllowCredentials())
}

func TestRegistry_NotConfigured(t *testing.T) {
	registry := newRegistry(t, settings.Static{})

	_, err := registry.String("nonexistent.key")
	require.Error(t, err)
	assert.True(t, settings.IsNotConfigured(err))

	// Domain getters degrade to defaults instead of failing.
	assert.Equal(t, 15*time.Minute, registry.TokenTTL())
	assert.Equal(t, 30*24*time.Hour, registry.SessionTTL())
	assert.Empty(t, registry.AllowedOrigins())
	assert.False(t, registry.DevMode())
}

func TestRegistry_RefreshSwapsSnapshot(t *testing.T) {
	values := settings.Static{"platform.dev_mode": "false"}
	registry := newRegistry(t, values)
	assert.False(t, registry.DevMode())

	values["platform.dev_mode"] = "true"
	require.NoError(t, registry.Refresh(context.Background()))
	assert.True(t, registry.DevMode())
}

func TestOriginPattern_Match(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		origin  string
		matches bool
	}{
		{"exact", "https://app.nexio.app", "https://app.nexio.app", true},
		{"exact_mismatch", "https://app.nexio.app", "https://evil.example", false},
		{"wildcard_subdomain", "https://*.nexio.app", "https://admin.nexio.app", true},
		{"wildcard_deep", "https://*.nexio.app", "https://a.b.nexio.app", true},
		{"wildcard_wrong_scheme", "https://*.nexio.app", "http://admin.nexio.app", false},
		{"wildcard_suffix_attack", "https://*.nexio.app", "https://notnexio.app", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, settings.OriginPattern(tt.pattern).Match(tt.origin))
		})
	}
}

func TestRegistry_OriginAllowed(t *testing.T) {
	registry := newRegistry(t, settings.Static{
		"cors.allowed_origins": "https://app.nexio.app, https://*.partner.example",
	})

	assert.True(t, registry.OriginAllowed("https://app.nexio.app"))
	assert.True(t, registry.OriginAllowed("https://shop.partner.example"))
	assert.False(t, registry.OriginAllowed("https://elsewhere.example"))
}

func TestParseRateLimitClass(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    settings.RateLimitClass
		wantErr bool
	}{
		{"full", "5/60s+2", settings.RateLimitClass{Limit: 5, Window: time.Minute, Burst: 2}, false},
		{"no_burst", "100/1m", settings.RateLimitClass{Limit: 100, Window: time.Minute}, false},
		{"bad_count", "x/60s", settings.RateLimitClass{}, true},
		{"bad_window", "5/soon", settings.RateLimitClass{}, true},
		{"negative_burst", "5/60s+-1", settings.RateLimitClass{}, true},
		{"missing_separator", "5", settings.RateLimitClass{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := settings.ParseRateLimitClass(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_RateLimitFor(t *testing.T) {
	registry := newRegistry(t, settings.Static{
		"rate_limit.class.LOGIN": "5/60s+2",
	})

	budget, err := registry.RateLimitFor("LOGIN")
	require.NoError(t, err)
	assert.Equal(t, 5, budget.Limit)
	assert.Equal(t, time.Minute, budget.Window)
	assert.Equal(t, 2, budget.Burst)

	_, err = registry.RateLimitFor("UNKNOWN")
	assert.True(t, settings.IsNotConfigured(err))
}
