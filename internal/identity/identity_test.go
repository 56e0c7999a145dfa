package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")
	token := signToken(t, "test-secret", jwt.MapClaims{
		"sub":       "u42",
		"name":      "alice",
		"moderator": true,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	ident, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u42", ident.UserID)
	require.Equal(t, "alice", ident.Username)
	require.True(t, ident.Moderator)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")
	token := signToken(t, "test-secret", jwt.MapClaims{
		"sub": "u42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")
	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "u42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")
	token := signToken(t, "test-secret", jwt.MapClaims{
		"name": "alice",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")
	_, err := verifier.Verify("")
	require.ErrorIs(t, err, ErrInvalidToken)
}
