// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, token signing,
// secure random generation) from the domain logic. It acts as an
// Infrastructure service injected into the admission layer via interfaces.
package sec

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/pkg/uuid"
)

// # Errors

var (
	// ErrTokenExpired is returned when the 'exp' claim is in the past
	// (beyond the allowed clock skew).
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenMalformed is returned for any other verification failure:
	// unknown algorithm, wrong shape, signature mismatch, or a token
	// issued in the future.
	ErrTokenMalformed = errors.New("sec: token malformed")
)

// # Claims

// AccessClaims is the payload embedded inside a signed access token.
//
// # Why custom claims?
//
// By embedding the tenant binding and capability tags directly inside the
// token, the credential verifier can reconstruct the caller's identity
// WITHOUT querying the database on every single API request. Revocation
// before expiry is handled by the companion jti denylist.
type AccessClaims struct {
	jwt.RegisteredClaims

	// TenantID is the tenant the subject was affiliated with at issue time.
	// Empty for tenantless principals (super-admins).
	TenantID string `json:"tid,omitempty"`

	// Capabilities holds the subject's role tags at issue time.
	Capabilities []string `json:"caps"`
}

// TokenService issues and verifies RS256-signed access tokens.
//
// # Rotation
//
// A single active key signs new tokens; additional decode-only public keys
// allow verification of tokens issued under previous keys. The service is
// stateless: revocation before expiry requires the jti denylist consulted
// by the credential verifier.
type TokenService struct {
	signingKey *rsa.PrivateKey
	decodeKeys []*rsa.PublicKey
	issuer     string
	clk        clock.Clock
	parser     *jwt.Parser
}

// NewTokenService reads RSA keys from the filesystem and constructs a service.
//
// # Parameters
//   - privateKeyPath: PEM path of the active signing key.
//   - publicKeyPaths: PEM paths of every accepted verification key
//     (the active key's public half first, then rotation leftovers).
func NewTokenService(privateKeyPath string, publicKeyPaths []string, issuer string, clk clock.Clock) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	decodeKeys := make([]*rsa.PublicKey, 0, len(publicKeyPaths))
	for _, path := range publicKeyPaths {
		publicKeyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sec: failed to read public key from %s: %w", path, err)
		}
		publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
		if err != nil {
			return nil, fmt.Errorf("sec: failed to parse public key %s: %w", path, err)
		}
		decodeKeys = append(decodeKeys, publicKey)
	}

	return NewTokenServiceFromKeys(privateKey, decodeKeys, issuer, clk), nil
}

// NewTokenServiceFromKeys constructs a service from in-memory keys.
// Used by tests and by callers that manage key material themselves.
func NewTokenServiceFromKeys(signingKey *rsa.PrivateKey, decodeKeys []*rsa.PublicKey, issuer string, clk clock.Clock) *TokenService {
	if len(decodeKeys) == 0 && signingKey != nil {
		decodeKeys = []*rsa.PublicKey{&signingKey.PublicKey}
	}
	return &TokenService{
		signingKey: signingKey,
		decodeKeys: decodeKeys,
		issuer:     issuer,
		clk:        clk,
		// Algorithm is pinned: anything but RS256 fails before signature checks.
		// Time claims are validated manually below so the skew window and the
		// future-iat rule stay explicit.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// # Issue

// Issue creates a signed access token for the given subject.
//
// The TTL is clamped to [constants.MaxTokenTTL]. A fresh jti is assigned so
// individual tokens can be denylisted before expiry.
func (service *TokenService) Issue(subject, tenantID string, capabilities []string, ttl time.Duration) (string, error) {
	if service.signingKey == nil {
		return "", fmt.Errorf("sec: no signing key configured")
	}

	if ttl <= 0 || ttl > constants.MaxTokenTTL {
		ttl = constants.MaxTokenTTL
	}

	now := service.clk.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New(),
		},
		TenantID:     tenantID,
		Capabilities: capabilities,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// # Verify

// Verify checks the signature and time claims of a token string.
//
// # Failure Modes
//
// Returns [ErrTokenExpired] when only the expiry is wrong, and
// [ErrTokenMalformed] for every other defect (unknown algorithm, bad
// signature, future iat). The distinction matters for logging; the wire
// response collapses both into the auth-invalid taxonomy.
func (service *TokenService) Verify(tokenString string) (*AccessClaims, error) {
	var lastErr error

	// Try every accepted decode key; tokens signed under a rotated-out key
	// fail with a signature mismatch on all of them.
	for _, key := range service.decodeKeys {
		claims := &AccessClaims{}
		token, err := service.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if !token.Valid {
			lastErr = fmt.Errorf("sec: invalid token")
			continue
		}

		return service.validateTimeClaims(claims)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("sec: no decode keys configured")
	}
	return nil, fmt.Errorf("%w: %s", ErrTokenMalformed, lastErr.Error())
}

// validateTimeClaims enforces exp/iat against the injected clock with skew.
func (service *TokenService) validateTimeClaims(claims *AccessClaims) (*AccessClaims, error) {
	now := service.clk.Now()

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	if claims.ExpiresAt.Time.Before(now.Add(-constants.ClockSkew)) {
		return nil, ErrTokenExpired
	}

	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(now.Add(constants.ClockSkew)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrTokenMalformed)
	}

	if service.issuer != "" && claims.Issuer != service.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenMalformed)
	}

	return claims, nil
}
