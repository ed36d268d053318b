// internal/auth/auth.go
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
)

// DefaultTokenTTL is the fixed lifetime of a session token.
const DefaultTokenTTL = time.Hour

// ephemeralSecretLength is the size of the signing key generated when no
// JWT_SECRET is configured.
const ephemeralSecretLength = 64

// Claims is the payload of a session token.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed session tokens bound to a user id.
type TokenService struct {
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
	ephemeral bool
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock replaces the wall clock used for issue and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewTokenService creates a TokenService signing with secret. An empty secret
// makes the service generate a random one, so its tokens die with the process.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	s := &TokenService{
		secret: secret,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.secret) == 0 {
		key, err := GenerateSecureKey(ephemeralSecretLength)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		s.secret = key
		s.ephemeral = true
	}
	return s, nil
}

// Ephemeral reports whether the signing key was generated at startup.
func (s *TokenService) Ephemeral() bool {
	return s.ephemeral
}

// TTL returns the token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID that expires TTL from now.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, apperrors.NewValidationError("userId is required", nil)
	}

	now := s.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "session",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, apperrors.NewProcessingError("failed to sign token", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify returns the user id bound to tokenStr. Any signature, format or
// expiry failure is reported as an invalid_token error.
func (s *TokenService) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", apperrors.NewInvalidTokenError(fmt.Errorf("empty token"))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", apperrors.NewInvalidTokenError(err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", apperrors.NewInvalidTokenError(fmt.Errorf("token carries no user"))
	}
	return claims.UserID, nil
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
