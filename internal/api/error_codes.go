// internal/api/error_codes.go
package api

// Public error bodies. Nothing below them is ever shown to a caller.
const (
	MsgInvalidAPIKey    = "Invalid API key"
	MsgInvalidToken     = "Invalid token"
	MsgNoToken          = "No token provided"
	MsgRateLimited      = "Rate limit exceeded"
	MsgForbidden        = "Access Forbidden"
	MsgInternalError    = "Internal server error"
	MsgInvalidBody      = "Invalid request body"
	MsgBodyTooLarge     = "Request body too large"
	MsgOriginNotAllowed = "CORS policy violation"
)

// Rate limit response headers.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
	HeaderRequestID     = "X-Request-ID"
	HeaderAPIKey        = "X-API-Key"
)
