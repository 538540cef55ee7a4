package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredentials indicates a request was attempted without a bearer token.
var ErrNoCredentials = errors.New("backend: credentials missing")

// Credentials carries the bearer token issued by the backend. It is passed
// explicitly to every call that talks to the backend.
type Credentials struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// ParseToken builds Credentials from a raw token. JWT claims are read without
// signature verification; opaque tokens are accepted with no expiry.
func ParseToken(token string) Credentials {
	token = strings.TrimSpace(token)
	creds := Credentials{Token: token}
	if token == "" {
		return creds
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return creds
	}
	creds.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	return creds
}

// Empty reports whether no token is present.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Token) == ""
}

// Expired reports whether the token carries an expiry in the past.
func (c Credentials) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Scope returns a short stable identifier for the token, safe to embed in
// cache keys.
func (c Credentials) Scope() string {
	if c.Subject != "" {
		return "sub-" + c.Subject
	}
	if c.Empty() {
		return "anon"
	}
	sum := sha256.Sum256([]byte(c.Token))
	return hex.EncodeToString(sum[:8])
}
