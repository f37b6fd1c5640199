// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/sec"
)

// newTestService builds a TokenService with a fresh RSA key and a manual clock.
func newTestService(t *testing.T) (*sec.TokenService, *clock.Manual, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	service := sec.NewTokenServiceFromKeys(key, nil, constants.AuthIssuer, clk)
	return service, clk, key
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	service, _, _ := newTestService(t)

	blob, err := service.Issue("u1", "t1", []string{"backoffice"}, 10*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	claims, err := service.Verify(blob)
	require.NoError(t, err)

	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, []string{"backoffice"}, claims.Capabilities)
	assert.NotEmpty(t, claims.ID, "every token carries a jti")
}

func TestTokenService_Expiry(t *testing.T) {
	service, clk, _ := newTestService(t)

	blob, err := service.Issue("u1", "t1", nil, 10*time.Minute)
	require.NoError(t, err)

	// Still valid just inside the skew window past expiry.
	clk.Advance(10*time.Minute + constants.ClockSkew - time.Second)
	_, err = service.Verify(blob)
	assert.NoError(t, err)

	// Rejected once the skew window is exhausted.
	clk.Advance(2 * time.Second)
	_, err = service.Verify(blob)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
}

func TestTokenService_TTLClamp(t *testing.T) {
	service, clk, _ := newTestService(t)

	// Request an absurd TTL; the codec must clamp it to the 60 min ceiling.
	blob, err := service.Issue("u1", "", nil, 24*time.Hour)
	require.NoError(t, err)

	claims, err := service.Verify(blob)
	require.NoError(t, err)

	maxExpiry := clk.Now().Add(constants.MaxTokenTTL)
	assert.False(t, claims.ExpiresAt.Time.After(maxExpiry))
}

func TestTokenService_UnknownAlgorithmRejected(t *testing.T) {
	service, clk, _ := newTestService(t)

	// Forge an HS256 token; the parser pins RS256 and must refuse it
	// before any signature inspection.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, sec.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	})
	blob, err := forged.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = service.Verify(blob)
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

func TestTokenService_SignatureMismatch(t *testing.T) {
	service, _, _ := newTestService(t)
	other, _, _ := newTestService(t)

	blob, err := other.Issue("u1", "t1", nil, 10*time.Minute)
	require.NoError(t, err)

	_, err = service.Verify(blob)
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

func TestTokenService_KeyRotation(t *testing.T) {
	oldService, clk, oldKey := newTestService(t)

	blob, err := oldService.Issue("u1", "t1", nil, 10*time.Minute)
	require.NoError(t, err)

	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// New service signs with the new key but still decodes the old one.
	rotated := sec.NewTokenServiceFromKeys(newKey,
		[]*rsa.PublicKey{&newKey.PublicKey, &oldKey.PublicKey},
		constants.AuthIssuer, clk)

	_, err = rotated.Verify(blob)
	assert.NoError(t, err, "tokens under the previous key verify during rotation")

	// A service without the old decode key must fail the same token.
	pruned := sec.NewTokenServiceFromKeys(newKey, nil, constants.AuthIssuer, clk)
	_, err = pruned.Verify(blob)
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

func TestTokenService_GarbageInput(t *testing.T) {
	service, _, _ := newTestService(t)

	for _, blob := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		_, err := service.Verify(blob)
		assert.ErrorIs(t, err, sec.ErrTokenMalformed, "input %q", blob)
	}
}

func TestTokenService_FutureIssuedAt(t *testing.T) {
	service, clk, _ := newTestService(t)

	blob, err := service.Issue("u1", "t1", nil, 10*time.Minute)
	require.NoError(t, err)

	// Rewind the verifier clock so the token appears issued in the future.
	clk.Advance(-(constants.ClockSkew + time.Minute))
	_, err = service.Verify(blob)
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

func TestSecureToken(t *testing.T) {
	token, err := sec.GenerateSecureToken(constants.SessionIDBytes)
	require.NoError(t, err)

	// 32 bytes of entropy → 43 URL-safe characters, no padding.
	assert.Len(t, token, 43)
	assert.NotEqual(t, token, sec.HashToken(token))

	other, err := sec.GenerateSecureToken(constants.SessionIDBytes)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
