// internal/auth/gate.go
package auth

import (
	"context"
	"crypto/subtle"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
)

// AuthContext is handed to downstream handlers after admission.
type AuthContext struct {
	UserID string
	Rate   RateStatus
}

// Credentials are the caller-supplied secrets of one request.
type Credentials struct {
	APIKey string
	Token  string
}

// AccessGate admits a request by checking, in order, the API key, the session
// token and the caller's rate window. The first failure ends the check, so a
// request rejected earlier never touches the rate window.
type AccessGate struct {
	apiKey []byte
	tokens *TokenService
	rate   *RateGate
}

// NewAccessGate creates a gate. An empty apiKey rejects every request.
func NewAccessGate(apiKey string, tokens *TokenService, rate *RateGate) *AccessGate {
	return &AccessGate{
		apiKey: []byte(apiKey),
		tokens: tokens,
		rate:   rate,
	}
}

// Admit runs the admission pipeline for creds.
func (g *AccessGate) Admit(ctx context.Context, creds Credentials) (*AuthContext, error) {
	if !g.validAPIKey(creds.APIKey) {
		return nil, apperrors.NewInvalidAPIKeyError()
	}

	if creds.Token == "" {
		return nil, apperrors.NewUnauthenticatedError("No token provided", nil)
	}
	userID, err := g.tokens.Verify(creds.Token)
	if err != nil {
		return nil, apperrors.NewUnauthenticatedError("Invalid token", err)
	}

	// A rate-limited caller still gets its context back for the limit headers.
	status, err := g.rate.Check(ctx, userID)
	return &AuthContext{UserID: userID, Rate: status}, err
}

// CheckAPIKey runs only the first stage. Session issuance uses it.
func (g *AccessGate) CheckAPIKey(key string) error {
	if !g.validAPIKey(key) {
		return apperrors.NewInvalidAPIKeyError()
	}
	return nil
}

// Tokens returns the gate's token service.
func (g *AccessGate) Tokens() *TokenService {
	return g.tokens
}

// RateGate returns the gate's rate counter.
func (g *AccessGate) RateGate() *RateGate {
	return g.rate
}

func (g *AccessGate) validAPIKey(key string) bool {
	if len(g.apiKey) == 0 || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), g.apiKey) == 1
}
