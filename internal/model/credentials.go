package model

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Credentials is the bearer token every hub call is made with. It is passed
// explicitly; nothing reads it from ambient state.
type Credentials struct {
	AccessToken string
	TokenType   string
	Email       string
	Expiry      time.Time
}

// Token converts the credentials into an oauth2 token so callers can use
// Token.SetAuthHeader.
func (c Credentials) Token() *oauth2.Token {
	typ := c.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return &oauth2.Token{AccessToken: c.AccessToken, TokenType: typ, Expiry: c.Expiry}
}

// Validate rejects credentials that cannot possibly succeed, before any
// network call is made.
func (c Credentials) Validate(now time.Time) error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return ErrMissingToken
	}
	exp := c.Expiry
	if exp.IsZero() {
		exp = TokenExpiry(c.AccessToken)
	}
	if !exp.IsZero() && !now.Before(exp) {
		return ErrTokenExpired
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT access token without verifying
// its signature (the hub owns the key). Opaque tokens yield the zero time.
func TokenExpiry(raw string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
