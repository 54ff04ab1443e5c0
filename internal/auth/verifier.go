// Package auth verifies bearer tokens and provisions user records on
// first login.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the identity asserted by a verified token. It carries
// only what the token proves; role and record state live in the store.
type Principal struct {
	Subject     string
	Email       string
	DisplayName string
	PhotoURL    string
}

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a raw bearer token into a Principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// JWTVerifier validates HS256-signed JWTs. The subject claim is
// required; email/name/picture are carried through when present.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret not set")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		// Some issuers put the stable id in user_id instead.
		sub, _ = claims["user_id"].(string)
	}
	if sub == "" {
		return nil, ErrInvalidToken
	}

	p := &Principal{Subject: sub}
	p.Email, _ = claims["email"].(string)
	p.DisplayName, _ = claims["name"].(string)
	p.PhotoURL, _ = claims["picture"].(string)
	return p, nil
}
