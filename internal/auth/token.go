package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName carries the dashboard auth token.
const CookieName = "evse_auth"

// DefaultTokenTTL matches the original 7-day cookie lifetime.
const DefaultTokenTTL = 7 * 24 * time.Hour

// TokenService issues and validates the signed cookie token handed out after
// a successful PIN login.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService returns a configured token service.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// TTL returns the token lifetime, which is also the cookie max-age.
func (t *TokenService) TTL() time.Duration {
	return t.ttl
}

// GenerateToken issues a signed token.
func (t *TokenService) GenerateToken() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   "dashboard",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken verifies signature and expiry.
func (t *TokenService) ValidateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("token: unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token: invalid token")
	}
	return nil
}
