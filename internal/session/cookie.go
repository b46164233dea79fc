package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCookie = errors.New("invalid session cookie")

// CookieName is the browser cookie carrying the signed session ID.
const CookieName = "paysecure_session"

// Codec signs session IDs into cookie values and verifies them on the way
// back in. The cookie carries only the ID; all state stays server-side.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// NewSessionID returns a fresh random session ID.
func NewSessionID() string {
	return uuid.NewString()
}

// Issue wraps a session ID in a signed HS256 token suitable for a cookie
// value.
func (c *Codec) Issue(sid string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse verifies a cookie value and returns the session ID it carries.
// Expired, tampered, or foreign-algorithm tokens all map to
// ErrInvalidCookie; the caller starts a fresh anonymous session.
func (c *Codec) Parse(value string) (string, error) {
	token, err := jwt.ParseWithClaims(value, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidCookie
		}
		return c.secret, nil
	})
	if err != nil {
		return "", ErrInvalidCookie
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidCookie
	}
	return claims.Subject, nil
}

// TTLSeconds is the cookie Max-Age matching the token lifetime.
func (c *Codec) TTLSeconds() int {
	return int(c.ttl / time.Second)
}
