package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes the loyalty backend hands out. The client never relies on
// them for decisions; it always reads exp from the token itself.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrMissingExpiry = errors.New("jwtx: token has no exp claim")
)

// Claims is the subset of registered claims the client cares about: exp, iat
// and sub. Anything else the backend adds is ignored.
type Claims struct {
	jwt.RegisteredClaims
}

// Decode parses the payload of a JWT without checking its signature. The
// client holds no verification key; the backend is the only judge of
// authenticity, so decoded claims are advisory (expiry hints for routing).
func Decode(raw string) (Claims, error) {
	var c Claims

	p := jwt.NewParser()
	if _, _, err := p.ParseUnverified(raw, &c); err != nil {
		return Claims{}, errors.Join(ErrMalformed, err)
	}

	if c.ExpiresAt == nil {
		return Claims{}, ErrMissingExpiry
	}

	return c, nil
}

// ExpiresAtUnix returns exp in epoch seconds (0 when absent).
func (c Claims) ExpiresAtUnix() int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}

// IssuedAtUnix returns iat in epoch seconds (0 when absent).
func (c Claims) IssuedAtUnix() int64 {
	if c.IssuedAt == nil {
		return 0
	}
	return c.IssuedAt.Unix()
}

// LiveAt reports whether exp is strictly after now.
func (c Claims) LiveAt(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Time.After(now)
}

// IsLive decodes raw and reports whether it is unexpired at now. Malformed
// tokens are never live.
func IsLive(raw string, now time.Time) bool {
	c, err := Decode(raw)
	if err != nil {
		return false
	}
	return c.LiveAt(now)
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
