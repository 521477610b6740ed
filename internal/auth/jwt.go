// Package auth provides the HS256 dev-mode token minting and validation
// used by synctest.Server. Full JWKS/RS256 upstream-IdP validation is a
// server-side concern this client library doesn't carry; only the HS256
// dev-mode subset is implemented here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erauner12/syncengine-go/internal/remote"
	"github.com/golang-jwt/jwt/v5"
)

// DevTokenTTL is how long a dev-minted token stays valid.
const DevTokenTTL = 1 * time.Hour

// DevTokenProvider mints and validates short-lived HS256 bearer tokens for
// local use against synctest.Server, and implements remote.TokenProvider
// for remote.HTTPClient. It never talks to an upstream IdP.
type DevTokenProvider struct {
	secret []byte
	sub    string
}

// NewDevTokenProvider builds a provider that always mints tokens for sub.
func NewDevTokenProvider(secret, sub string) *DevTokenProvider {
	return &DevTokenProvider{secret: []byte(secret), sub: sub}
}

// GetToken mints a fresh HS256 token. audience/scope/forceRefresh are
// accepted to satisfy remote.TokenProvider but ignored: dev tokens are
// cheap enough to mint every call rather than cache.
func (p *DevTokenProvider) GetToken(_ context.Context, _ string, _ string, _ bool) (remote.TokenResult, error) {
	tok, err := p.Mint()
	return remote.TokenResult{AccessToken: tok}, err
}

// InvalidateToken is a no-op: dev tokens aren't cached.
func (p *DevTokenProvider) InvalidateToken(_ string, _ string) {}

// Mint signs a new HS256 token for the configured subject.
func (p *DevTokenProvider) Mint() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        p.sub,
		"token_type": "dev",
		"iat":        now.Unix(),
		"exp":        now.Add(DevTokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(p.secret)
}

// ValidateDevToken validates an HS256 token minted by DevTokenProvider (or
// any HS256 token signed with the same secret) and returns its subject.
func ValidateDevToken(tokenString, secret string) (string, error) {
	if tokenString == "" {
		return "", errors.New("token is empty")
	}

	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !t.Valid {
		return "", fmt.Errorf("jwt validation failed: %w", err)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing or invalid sub claim")
	}
	return sub, nil
}
