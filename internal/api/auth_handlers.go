// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/middleware"
	"github.com/nexioerp/nexio/internal/platform/respond"
	"github.com/nexioerp/nexio/internal/platform/validate"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	if err := v.Required("email", req.Email).
		Email("email", req.Email).
		Required("password", req.Password).
		Err(); err != nil {
		respond.Error(w, r, err)
		return
	}

	result, err := s.iamService.Login(r.Context(),
		req.Email, req.Password, req.TenantID,
		middleware.RealIP(r), r.UserAgent())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	// A signed credential is denylisted for its remaining life, so a
	// logged-out token stops verifying before its natural expiry.
	if rc.TokenID != "" {
		if err := s.sessions.DenyToken(r.Context(), rc.TokenID, rc.TokenExpiresAt); err != nil {
			respond.Error(w, r, err)
			return
		}
	}

	if id := r.Header.Get(constants.HeaderXSessionID); id != "" {
		if err := s.sessions.Revoke(r.Context(), id); err != nil {
			respond.Error(w, r, err)
			return
		}
	}
	respond.NoContent(w)
}

// sessionView is the caller-facing shape of an active session. The
// hash doubles as the revocation handle; the plaintext id is never
// stored and cannot be shown again.
type sessionView struct {
	Hash      string    `json:"hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	active, err := s.sessions.ListActive(r.Context(), rc.PrincipalID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	views := make([]sessionView, len(active))
	for i, sess := range active {
		views[i] = sessionView{
			Hash:      sess.Hash,
			IssuedAt:  sess.IssuedAt,
			ExpiresAt: sess.ExpiresAt,
			IP:        sess.IP,
			UserAgent: sess.UserAgent,
		}
	}
	respond.OK(w, views)
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	hash := chi.URLParam(r, "hash")

	// Only the caller's own sessions are addressable; anything else
	// reads as unknown so hashes cannot be probed.
	active, err := s.sessions.ListActive(r.Context(), rc.PrincipalID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	owned := false
	for _, sess := range active {
		if sess.Hash == hash {
			owned = true
			break
		}
	}
	if !owned {
		respond.Error(w, r, apperr.NotFound("session"))
		return
	}

	if err := s.sessions.RevokeByHash(r.Context(), hash); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.NoContent(w)
}

func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	// The caller's own signed credential dies with the rest.
	if rc.TokenID != "" {
		if err := s.sessions.DenyToken(r.Context(), rc.TokenID, rc.TokenExpiresAt); err != nil {
			respond.Error(w, r, err)
			return
		}
	}

	count, err := s.sessions.RevokeAllFor(r.Context(), rc.PrincipalID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, map[string]int{"revoked": count})
}
