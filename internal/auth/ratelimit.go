// internal/auth/ratelimit.go
package auth

import (
	"context"
	"time"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
)

const (
	DefaultRateQuota  = 100
	DefaultRateWindow = time.Hour
)

// RateStatus describes a user's window after a check.
type RateStatus struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateGate is a per-user fixed-window request counter.
type RateGate struct {
	store  WindowStore
	quota  int
	window time.Duration
	now    func() time.Time
}

// RateOption configures a RateGate.
type RateOption func(*RateGate)

// WithQuota sets the number of requests admitted per window.
func WithQuota(quota int) RateOption {
	return func(g *RateGate) {
		if quota > 0 {
			g.quota = quota
		}
	}
}

// WithWindow sets the window length.
func WithWindow(window time.Duration) RateOption {
	return func(g *RateGate) {
		if window > 0 {
			g.window = window
		}
	}
}

// WithRateClock replaces the wall clock.
func WithRateClock(now func() time.Time) RateOption {
	return func(g *RateGate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewRateGate creates a gate over store. A nil store gets a fresh in-memory one.
func NewRateGate(store WindowStore, opts ...RateOption) *RateGate {
	if store == nil {
		store = NewMemoryWindowStore()
	}
	g := &RateGate{
		store:  store,
		quota:  DefaultRateQuota,
		window: DefaultRateWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Quota returns the per-window quota.
func (g *RateGate) Quota() int {
	return g.quota
}

// Check counts one request for userID. A user at quota gets a rate_limited
// error and the count is left unchanged.
func (g *RateGate) Check(ctx context.Context, userID string) (RateStatus, error) {
	w, allowed, err := g.store.Hit(ctx, userID, g.quota, g.window, g.now())
	if err != nil {
		return RateStatus{}, apperrors.NewProcessingError("rate window unavailable", err)
	}

	status := RateStatus{
		Limit:     g.quota,
		Remaining: g.quota - w.Count,
		ResetAt:   w.ResetAt,
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if !allowed {
		return status, apperrors.NewRateLimitedError()
	}
	return status, nil
}

// Window returns the current window of userID, if one exists.
func (g *RateGate) Window(ctx context.Context, userID string) (RateWindow, bool, error) {
	return g.store.Get(ctx, userID)
}
