package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewInvalidAPIKeyError(), http.StatusUnauthorized},
		{NewInvalidTokenError(nil), http.StatusUnauthorized},
		{NewUnauthenticatedError("no token", nil), http.StatusUnauthorized},
		{NewRateLimitedError(), http.StatusTooManyRequests},
		{NewValidationError("bad", nil), http.StatusBadRequest},
		{NewUpstreamFailure(500, nil), http.StatusBadGateway},
		{NewMalformedResponseError("empty", nil), http.StatusBadGateway},
		{NewTimeoutError(nil), http.StatusGatewayTimeout},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestUpstreamStatusSurvivesWrapping(t *testing.T) {
	err := WrapError(NewUpstreamFailure(503, nil), "relay", ErrorTypeError)

	status, ok := UpstreamStatus(err)
	assert.True(t, ok)
	assert.Equal(t, 503, status)
	assert.True(t, IsUpstreamFailure(err))
}

func TestPredicatesOnWrappedErrors(t *testing.T) {
	err := fmt.Errorf("gate: %w", NewRateLimitedError())

	assert.True(t, IsRateLimited(err))
	assert.False(t, IsInvalidAPIKey(err))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", NewRateLimitedError().Code)
}
