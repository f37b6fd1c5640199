// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package iam

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexioerp/nexio/internal/iam/session"
	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/sec"
	"github.com/nexioerp/nexio/internal/platform/settings"
)

// LoginResult is what a successful login hands back to the client:
// both credential forms, so web and API callers pick their own.
type LoginResult struct {
	AccessToken string     `json:"access_token"`
	SessionID   string     `json:"session_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Principal   *Principal `json:"principal"`
}

// Service implements the credential issuance flows.
type Service struct {
	principals PrincipalStore
	sessions   *session.Manager
	tokens     *sec.TokenService
	registry   *settings.Registry
	clk        clock.Clock
	log        *slog.Logger
}

// NewService wires the IAM service.
func NewService(principals PrincipalStore, sessions *session.Manager, tokens *sec.TokenService, registry *settings.Registry, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		principals: principals,
		sessions:   sessions,
		tokens:     tokens,
		registry:   registry,
		clk:        clk,
		log:        log,
	}
}

/*
Login verifies an email/password pair and issues both credential forms.

Parameters:
  - ctx: request context.
  - email, password: submitted credentials.
  - tenantID: resolved tenant binding baked into the signed token.
  - ip, userAgent: client metadata attached to the session.

Returns:
  - *LoginResult: token, session id, and the authenticated principal.
  - error: the same AUTH_REQUIRED failure for unknown addresses and
    wrong passwords, so login cannot be used to probe for accounts.
*/
func (s *Service) Login(ctx context.Context, email, password, tenantID, ip, userAgent string) (*LoginResult, error) {
	id, hash, err := s.principals.CredentialByEmail(ctx, email)
	if err != nil {
		if ae := apperr.As(err); ae != nil && ae.Code == "NOT_FOUND" {
			// Burn a comparison anyway to keep timing flat.
			sec.CheckPasswordHash(password, sec.DummyHash)
			return nil, apperr.AuthRequired()
		}
		return nil, err
	}
	if !sec.CheckPasswordHash(password, hash) {
		s.log.Warn("login rejected", "email", email, "ip", ip)
		return nil, apperr.AuthRequired()
	}

	principal, err := s.principals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ttl := s.registry.TokenTTL()
	token, err := s.tokens.Issue(principal.ID, tenantID, principal.CapabilityStrings(), ttl)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	sessionID, _, err := s.sessions.Create(ctx, principal.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	s.log.Info("login succeeded", "principal_id", principal.ID, "ip", ip)
	return &LoginResult{
		AccessToken: token,
		SessionID:   sessionID,
		ExpiresAt:   s.clk.Now().Add(ttl),
		Principal:   principal,
	}, nil
}
