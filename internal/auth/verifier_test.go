package auth

import (
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, std gojwt.Claims, custom map[string]any) string {
	t.Helper()
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte(secret)},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)
	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, testSecret, gojwt.Claims{
		Subject: "42",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, map[string]any{"org_id": 10})

	principal, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(10), principal.OrgID)
	require.Equal(t, int64(42), principal.UserID)
}

func TestVerifyWrongSecret(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, "another-secret-another-secret-ab", gojwt.Claims{
		Subject: "42",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, map[string]any{"org_id": 10})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyExpiredToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, testSecret, gojwt.Claims{
		Subject: "42",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, map[string]any{"org_id": 10})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyMissingOrgClaim(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, testSecret, gojwt.Claims{
		Subject: "42",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, nil)

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyNonNumericSubject(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, testSecret, gojwt.Claims{
		Subject: "alice",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, map[string]any{"org_id": 10})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyGarbage(t *testing.T) {
	verifier := NewVerifier(testSecret)
	_, err := verifier.Verify("not-a-jwt")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
