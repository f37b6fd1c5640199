// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package credential classifies and verifies request credentials.

# Classification

Classification is purely lexical and happens before any verification:

  - X-Session-Id header        -> opaque session id, always.
  - Authorization bearer value -> signed token when it starts with the
    JWT header prefix and has the three-segment dotted shape, opaque
    session id otherwise.

A malformed signed token is therefore never retried as a session id,
and vice versa: the two credential families keep disjoint failure
modes.
*/
package credential

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/iam/session"
	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/sec"
)

// Status is the verification result class.
type Status string

const (
	StatusAuthenticated  Status = "authenticated"
	StatusNoCredential   Status = "no_credential"
	StatusTokenExpired   Status = "token_expired"
	StatusTokenMalformed Status = "token_malformed"
	StatusSessionExpired Status = "session_expired"
	StatusSessionUnknown Status = "session_unknown"
)

// Method names the credential family that produced an outcome.
type Method string

const (
	MethodNone   Method = "none"
	MethodSigned Method = "signed"
	MethodOpaque Method = "opaque"
)

// Outcome is the full result of credential verification. Principal is
// non-nil only for StatusAuthenticated.
type Outcome struct {
	Status    Status
	Method    Method
	Principal *iam.Principal

	// SessionHash identifies the backing session for opaque outcomes.
	SessionHash string

	// TokenID is the jti for signed outcomes, kept for audit trails
	// and for denylisting on logout.
	TokenID string

	// TokenExpiresAt is the natural expiry of a signed credential,
	// zero otherwise. It bounds the denylist TTL on revocation.
	TokenExpiresAt time.Time
}

// Verifier turns raw request credentials into an identity outcome.
type Verifier struct {
	tokens      *sec.TokenService
	sessions    *session.Manager
	principals  iam.PrincipalStore
	revocations session.RevocationList
}

// NewVerifier wires the credential verifier.
func NewVerifier(tokens *sec.TokenService, sessions *session.Manager, principals iam.PrincipalStore, revocations session.RevocationList) *Verifier {
	return &Verifier{tokens: tokens, sessions: sessions, principals: principals, revocations: revocations}
}

/*
Verify classifies and verifies the request's credential.

Parameters:
  - ctx: request context.
  - r: incoming request. Only headers are read.

Returns:
  - *Outcome: classification and, when authenticated, the principal.
  - error: non-nil only for infrastructure failures (store outage);
    every credential defect is expressed as an Outcome status.
*/
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (*Outcome, error) {
	raw, method := extract(r)
	switch method {
	case MethodSigned:
		return v.verifySigned(ctx, raw)
	case MethodOpaque:
		return v.verifyOpaque(ctx, raw)
	default:
		return &Outcome{Status: StatusNoCredential, Method: MethodNone}, nil
	}
}

// extract pulls the raw credential off the request and classifies it.
func extract(r *http.Request) (string, Method) {
	// 1. Authorization header wins when both are present.
	if auth := r.Header.Get("Authorization"); auth != "" {
		value, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			// Unrecognised scheme: treat the whole header as absent
			// rather than guessing.
			return "", MethodNone
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return "", MethodNone
		}
		// Every JWT header starts with base64url {" -> "eyJ"; a dotted
		// opaque id must not be misrouted to signature verification.
		if strings.Count(value, ".") == 2 && strings.HasPrefix(value, "eyJ") {
			return value, MethodSigned
		}
		return value, MethodOpaque
	}

	// 2. The dedicated session header is always opaque, whatever the
	//    value looks like.
	if sid := r.Header.Get(constants.HeaderXSessionID); sid != "" {
		return sid, MethodOpaque
	}

	return "", MethodNone
}

func (v *Verifier) verifySigned(ctx context.Context, raw string) (*Outcome, error) {
	claims, err := v.tokens.Verify(raw)
	if err != nil {
		switch {
		case errors.Is(err, sec.ErrTokenExpired):
			return &Outcome{Status: StatusTokenExpired, Method: MethodSigned}, nil
		default:
			return &Outcome{Status: StatusTokenMalformed, Method: MethodSigned}, nil
		}
	}

	// A structurally valid token may still have been revoked early.
	if claims.ID != "" {
		denied, err := v.revocations.JTIDenied(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if denied {
			return &Outcome{Status: StatusTokenMalformed, Method: MethodSigned, TokenID: claims.ID}, nil
		}
	}

	// Identity is reconstructed from the claims alone; the signed path
	// never touches the principal store.
	principal := &iam.Principal{
		ID:           claims.Subject,
		Capabilities: iam.CapabilitiesFromStrings(claims.Capabilities),
		TenantHint:   claims.TenantID,
	}
	out := &Outcome{
		Status:    StatusAuthenticated,
		Method:    MethodSigned,
		Principal: principal,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.TokenExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (v *Verifier) verifyOpaque(ctx context.Context, raw string) (*Outcome, error) {
	sess, err := v.sessions.Lookup(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrExpired):
			return &Outcome{Status: StatusSessionExpired, Method: MethodOpaque}, nil
		case errors.Is(err, session.ErrUnknown):
			return &Outcome{Status: StatusSessionUnknown, Method: MethodOpaque}, nil
		default:
			return nil, err
		}
	}

	principal, err := v.principals.FindByID(ctx, sess.PrincipalID)
	if err != nil {
		if ae := apperr.As(err); ae != nil && ae.Code == "NOT_FOUND" {
			// The session outlived its principal; resolve like a dead id.
			return &Outcome{Status: StatusSessionUnknown, Method: MethodOpaque}, nil
		}
		return nil, err
	}

	return &Outcome{
		Status:      StatusAuthenticated,
		Method:      MethodOpaque,
		Principal:   principal,
		SessionHash: sess.Hash,
	}, nil
}
