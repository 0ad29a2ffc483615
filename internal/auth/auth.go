// Package auth verifies the bearer credential presented at the websocket
// handshake and on mutation requests. Token issuance belongs to the external
// identity service; this package only checks signatures and expiry.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers an absent, malformed, expired or mis-signed
// credential. Callers disconnect without sending detail to the client.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (uuid.UUID, error)
}

// JWTVerifier validates HS256 tokens whose subject is the user id.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(ctx context.Context, credential string) (uuid.UUID, error) {
	if credential == "" {
		return uuid.Nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(credential, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// StaticVerifier maps fixed credentials to user ids. Used by tests and by
// the agent against development servers.
type StaticVerifier struct {
	Tokens map[string]uuid.UUID
}

func (v *StaticVerifier) Verify(ctx context.Context, credential string) (uuid.UUID, error) {
	id, ok := v.Tokens[credential]
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
