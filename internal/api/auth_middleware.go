// internal/api/auth_middleware.go
package api

import (
	"strconv"
	"strings"

	"github.com/Corphon/PersonaChat/internal/auth"
	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
)

const authContextKey = "auth_context"

// credentialsFrom reads the API key and bearer token of a request. Websocket
// upgrades may carry both as query parameters instead.
func credentialsFrom(c *gin.Context, allowQuery bool) auth.Credentials {
	creds := auth.Credentials{
		APIKey: c.GetHeader(HeaderAPIKey),
		Token:  bearerToken(c.GetHeader("Authorization")),
	}
	if allowQuery {
		if creds.APIKey == "" {
			creds.APIKey = c.Query("api_key")
		}
		if creds.Token == "" {
			creds.Token = c.Query("token")
		}
	}
	return creds
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GateMiddleware runs the full admission pipeline: API key, session token,
// then the per-user rate window.
func GateMiddleware(gate *auth.AccessGate, rh *ResponseHelper, metrics *utils.ChatMetrics, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx, err := gate.Admit(c.Request.Context(), credentialsFrom(c, allowQuery))
		if authCtx != nil {
			setRateHeaders(c, authCtx.Rate)
		}
		if err != nil {
			rejectRequest(c, rh, metrics, err)
			return
		}

		metrics.RecordAdmission()
		c.Set(authContextKey, authCtx)
		c.Next()
	}
}

// APIKeyMiddleware runs only the API key stage.
func APIKeyMiddleware(gate *auth.AccessGate, rh *ResponseHelper, metrics *utils.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.CheckAPIKey(c.GetHeader(HeaderAPIKey)); err != nil {
			rejectRequest(c, rh, metrics, err)
			return
		}
		c.Next()
	}
}

// rejectRequest logs the failing stage only, never the credentials.
func rejectRequest(c *gin.Context, rh *ResponseHelper, metrics *utils.ChatMetrics, err error) {
	kind := string(apperrors.TypeOf(err))
	metrics.RecordRejection(kind)
	rh.logger.Warn("request rejected", map[string]interface{}{
		"request_id": requestID(c),
		"path":       c.Request.URL.Path,
		"stage":      kind,
	})
	rh.Error(c, err)
}

// GetAuthContext returns the context stored by GateMiddleware.
func GetAuthContext(c *gin.Context) (*auth.AuthContext, bool) {
	v, exists := c.Get(authContextKey)
	if !exists {
		return nil, false
	}
	authCtx, ok := v.(*auth.AuthContext)
	return authCtx, ok && authCtx != nil
}

func setRateHeaders(c *gin.Context, status auth.RateStatus) {
	if status.Limit == 0 {
		return
	}
	c.Header(HeaderRateLimit, strconv.Itoa(status.Limit))
	c.Header(HeaderRateRemaining, strconv.Itoa(status.Remaining))
	c.Header(HeaderRateReset, strconv.FormatInt(status.ResetAt.Unix(), 10))
}
