// Package auth issues and verifies bearer tokens and resolves them to the
// identity that holds them.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
)

// Identity is the authenticated principal attached to a request or socket.
type Identity struct {
	ID    string
	Role  string
	Name  string
	Email string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == db.RoleAdmin }

type Claims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens with a shared secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for id that expires after the configured TTL.
func (m *TokenManager) Issue(id Identity) (string, error) {
	role := id.Role
	if role == "" {
		role = db.RoleUser
	}

	now := m.now()
	claims := Claims{
		ID:    id.ID,
		Role:  role,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies the signature and expiry of token.
//
// Errors:
//   - empty token → ErrAuthenticationFailed
//   - expired → ErrTokenExpired
//   - anything else → ErrInvalidToken
func (m *TokenManager) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, svcErr.ErrAuthenticationFailed
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, svcErr.Wrap(svcErr.ErrTokenExpired, err)
	case err != nil:
		return nil, svcErr.Wrap(svcErr.ErrInvalidToken, err)
	case !parsed.Valid || claims.ID == "":
		return nil, svcErr.ErrInvalidToken
	}

	if claims.Role == "" {
		claims.Role = db.RoleUser
	}
	return claims, nil
}
