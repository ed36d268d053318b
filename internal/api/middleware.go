// internal/api/middleware.go
package api

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestID tags every request with a UUID, reusing a well-formed inbound one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// SecurityHeaders sets the response headers every page and API reply carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Download-Options", "noopen")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		h.Set("Origin-Agent-Cluster", "?1")
		h.Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; frame-src 'none'; form-action 'self'")
		c.Next()
	}
}

// CORS admits only the configured origins. Requests without an Origin header
// are same-origin or non-browser and pass untouched.
func CORS(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := origins[origin]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": MsgOriginNotAllowed})
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		h.Set("Access-Control-Max-Age", "3600")
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.env`),
	regexp.MustCompile(`\.git`),
	regexp.MustCompile(`\.config`),
	regexp.MustCompile(`node_modules`),
	regexp.MustCompile(`\.log$`),
	regexp.MustCompile(`\.sql$`),
	regexp.MustCompile(`\.htaccess$`),
	regexp.MustCompile(`wp-config`),
	regexp.MustCompile(`config\.js`),
	regexp.MustCompile(`package\.json`),
}

// IsSensitivePath reports whether path names a file that must never be served.
func IsSensitivePath(path string) bool {
	path = strings.ToLower(path)
	for _, p := range sensitivePatterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

// SensitivePathGuard answers 403 for config, VCS and dependency paths.
func SensitivePathGuard(rh *ResponseHelper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsSensitivePath(c.Request.URL.Path) {
			rh.Forbidden(c)
			return
		}
		c.Next()
	}
}

// BodyLimit caps request bodies at limit bytes.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RequestLogger logs each request once it completes and feeds the metrics.
func RequestLogger(logger *utils.Logger, metrics *utils.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		metrics.RecordRequest(routeMetricName(route), status, elapsed)

		fields := map[string]interface{}{
			"request_id":  requestID(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request completed", fields)
		} else {
			logger.Debug("request completed", fields)
		}
	}
}

// routeMetricName turns /api/chat/stream into api_chat_stream.
func routeMetricName(route string) string {
	route = strings.Trim(route, "/")
	if route == "" {
		return ""
	}
	return strings.NewReplacer("/", "_", "-", "_", ":", "").Replace(route)
}
