// internal/api/router.go
package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/Corphon/PersonaChat/internal/auth"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Gate          *auth.AccessGate
	Relay         *services.ChatRelay
	Traits        *services.TraitGenerator
	Personalities *services.PersonalityService
	Metrics       *utils.ChatMetrics
	Logger        *utils.Logger

	AllowedOrigins []string
	MaxBodyBytes   int64
	// StaticDir is served at / when it exists.
	StaticDir string
	DebugMode bool
}

// SetupRouter builds the gin engine with every route and middleware.
func SetupRouter(deps Deps) (*gin.Engine, error) {
	if deps.Gate == nil {
		return nil, errors.New("access gate is required")
	}
	if deps.Relay == nil {
		return nil, errors.New("chat relay is required")
	}

	if !deps.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := NewHandler(deps)
	rh := handler.Response

	r := gin.New()
	r.Use(
		gin.Recovery(),
		RequestID(),
		RequestLogger(handler.Logger, handler.Metrics),
		SecurityHeaders(),
		CORS(deps.AllowedOrigins),
		SensitivePathGuard(rh),
		BodyLimit(deps.MaxBodyBytes),
	)

	r.GET("/health", handler.Health)

	apiKeyOnly := APIKeyMiddleware(deps.Gate, rh, handler.Metrics)
	gated := GateMiddleware(deps.Gate, rh, handler.Metrics, false)

	api := r.Group("/api")
	{
		api.POST("/auth/session", apiKeyOnly, handler.CreateSession)

		chatGroup := api.Group("/chat", gated)
		{
			chatGroup.POST("", handler.Chat)
			chatGroup.POST("/stream", handler.ChatStream)
		}

		api.POST("/generate-traits", gated, handler.GenerateTraits)
		api.POST("/save-personality", apiKeyOnly, handler.SavePersonality)
		api.POST("/context", apiKeyOnly, handler.RenderContext)
		api.GET("/metrics", apiKeyOnly, handler.GetMetrics)
	}

	// browsers cannot set headers on an upgrade, so credentials may ride the query
	r.GET("/ws/chat", GateMiddleware(deps.Gate, rh, handler.Metrics, true), handler.ChatWebSocket)

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			fs := http.Dir(deps.StaticDir)
			r.NoRoute(func(c *gin.Context) {
				if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
					c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
					return
				}
				c.FileFromFS(c.Request.URL.Path, fs)
			})
		} else {
			handler.Logger.Warn("static directory not found, serving API only", map[string]interface{}{
				"static_dir": deps.StaticDir,
			})
		}
	}

	return r, nil
}
