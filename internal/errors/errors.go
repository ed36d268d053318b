// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType identifies the failure kind carried by an AppError.
type ErrorType string

const (
	// admission failures
	ErrorTypeInvalidAPIKey   ErrorType = "invalid_api_key"
	ErrorTypeInvalidToken    ErrorType = "invalid_token"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeRateLimited     ErrorType = "rate_limited"

	// relay failures
	ErrorTypeUpstreamFailure   ErrorType = "upstream_failure"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeTimeout           ErrorType = "timeout"

	// general
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeError      ErrorType = "processing_error"
)

// AppError is the typed error returned by every failure path of the core.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
	// StatusCode is the upstream HTTP status for upstream_failure errors.
	StatusCode int
}

// Error implements error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements error chaining.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

func NewInvalidAPIKeyError() *AppError {
	return NewAppError(ErrorTypeInvalidAPIKey, "Invalid API key", nil)
}

func NewInvalidTokenError(originalError error) *AppError {
	return NewAppError(ErrorTypeInvalidToken, "Invalid token", originalError)
}

func NewUnauthenticatedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthenticated, message, originalError)
}

func NewRateLimitedError() *AppError {
	return NewAppError(ErrorTypeRateLimited, "Rate limit exceeded", nil)
}

// NewUpstreamFailure records a non-success status returned by the upstream.
func NewUpstreamFailure(status int, originalError error) *AppError {
	e := NewAppError(ErrorTypeUpstreamFailure, fmt.Sprintf("upstream returned status %d", status), originalError)
	e.StatusCode = status
	return e
}

func NewMalformedResponseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformedResponse, message, originalError)
}

func NewTimeoutError(originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, "upstream request timed out", originalError)
}

func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// TypeOf returns the ErrorType of err, or "" when err is not an AppError.
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

func IsInvalidAPIKey(err error) bool     { return TypeOf(err) == ErrorTypeInvalidAPIKey }
func IsInvalidToken(err error) bool      { return TypeOf(err) == ErrorTypeInvalidToken }
func IsUnauthenticated(err error) bool   { return TypeOf(err) == ErrorTypeUnauthenticated }
func IsRateLimited(err error) bool       { return TypeOf(err) == ErrorTypeRateLimited }
func IsUpstreamFailure(err error) bool   { return TypeOf(err) == ErrorTypeUpstreamFailure }
func IsMalformedResponse(err error) bool { return TypeOf(err) == ErrorTypeMalformedResponse }
func IsTimeout(err error) bool           { return TypeOf(err) == ErrorTypeTimeout }
func IsValidationError(err error) bool   { return TypeOf(err) == ErrorTypeValidation }

// UpstreamStatus returns the upstream status carried by an upstream_failure error.
func UpstreamStatus(err error) (int, bool) {
	var appError *AppError
	if errors.As(err, &appError) && appError.Type == ErrorTypeUpstreamFailure {
		return appError.StatusCode, true
	}
	return 0, false
}

// HTTPStatus maps an error to the status returned to the inbound caller.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeInvalidAPIKey, ErrorTypeInvalidToken, ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeUpstreamFailure, ErrorTypeMalformedResponse:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// generateErrorCode derives the public error code from the error type.
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeInvalidAPIKey:
		return "INVALID_API_KEY"
	case ErrorTypeInvalidToken:
		return "INVALID_TOKEN"
	case ErrorTypeUnauthenticated:
		return "UNAUTHORIZED"
	case ErrorTypeRateLimited:
		return "RATE_LIMIT_EXCEEDED"
	case ErrorTypeUpstreamFailure:
		return "UPSTREAM_FAILURE"
	case ErrorTypeMalformedResponse:
		return "MALFORMED_RESPONSE"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError wraps err with message, keeping the type of an inner AppError.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:       appError.Type,
			Message:    fmt.Sprintf("%s: %s", message, appError.Message),
			Err:        appError,
			Code:       appError.Code,
			StatusCode: appError.StatusCode,
		}
	}

	return NewAppError(errType, message, err)
}
