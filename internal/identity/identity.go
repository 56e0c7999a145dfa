package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken covers any session token the gate cannot resolve to a
// user: missing, malformed, expired or wrongly signed.
var ErrInvalidToken = errors.New("invalid session token")

// Identity is the result of resolving a session token.
type Identity struct {
	UserID    string
	Username  string
	Moderator bool
}

// Verifier resolves a session token to a user identity, or rejects it.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type sessionClaims struct {
	Username  string `json:"name"`
	Moderator bool   `json:"moderator"`
	jwt.RegisteredClaims
}

// JWTVerifier validates platform-issued HMAC session tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier over the shared session secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token and extracts the identity claims.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Moderator: claims.Moderator,
	}, nil
}
