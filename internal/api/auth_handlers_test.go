// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/admission"
	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/iam/session"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/settings"
)

func newSessionFixture(t *testing.T) (*Server, *session.Manager, *session.MemoryRevocationList, *clock.Manual) {
	t.Helper()

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry, err := settings.NewRegistry(context.Background(), settings.Static{
		settings.KeySessionTTL: "24h",
	}, slog.Default())
	require.NoError(t, err)

	revocations := session.NewMemoryRevocationList()
	sessions := session.NewManager(session.NewMemoryStore(), revocations, registry, clk)
	s := &Server{log: slog.Default(), sessions: sessions}
	return s, sessions, revocations, clk
}

func logoutRequest(rc *admission.RequestContext) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	return r.WithContext(admission.WithRequestContext(r.Context(), rc))
}

func TestLogout_DenylistsSignedToken(t *testing.T) {
	s, _, revocations, clk := newSessionFixture(t)

	rec := httptest.NewRecorder()
	s.handleLogout(rec, logoutRequest(&admission.RequestContext{
		Principal:      &iam.Principal{ID: "prin-1"},
		TokenID:        "jti-1",
		TokenExpiresAt: clk.Now().Add(15 * time.Minute),
	}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	denied, err := revocations.JTIDenied(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, denied, "logout must revoke the signed credential before its natural expiry")
}

func TestLogout_RevokesSessionAndToken(t *testing.T) {
	s, sessions, revocations, clk := newSessionFixture(t)
	ctx := context.Background()

	id, _, err := sessions.Create(ctx, "prin-1", "", "")
	require.NoError(t, err)

	req := logoutRequest(&admission.RequestContext{
		Principal:      &iam.Principal{ID: "prin-1"},
		TokenID:        "jti-1",
		TokenExpiresAt: clk.Now().Add(15 * time.Minute),
	})
	req.Header.Set(constants.HeaderXSessionID, id)

	rec := httptest.NewRecorder()
	s.handleLogout(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = sessions.Lookup(ctx, id)
	assert.ErrorIs(t, err, session.ErrUnknown)
	denied, err := revocations.JTIDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, denied)
}

func TestRevokeAllSessions_DenylistsCallerToken(t *testing.T) {
	s, _, revocations, clk := newSessionFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sessions/revoke-all", nil)
	req = req.WithContext(admission.WithRequestContext(req.Context(), &admission.RequestContext{
		Principal:      &iam.Principal{ID: "prin-1"},
		TokenID:        "jti-9",
		TokenExpiresAt: clk.Now().Add(15 * time.Minute),
	}))

	rec := httptest.NewRecorder()
	s.handleRevokeAllSessions(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	denied, err := revocations.JTIDenied(context.Background(), "jti-9")
	require.NoError(t, err)
	assert.True(t, denied)
}
