// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Corphon/PersonaChat/internal/api"
	"github.com/Corphon/PersonaChat/internal/auth"
	"github.com/Corphon/PersonaChat/internal/config"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/llm/providers/chatcompat"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := utils.InitLogger(cfg.DebugMode)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Sync()

	store, err := newWindowStore(cfg)
	if err != nil {
		logger.Fatal("failed to create rate window store", map[string]interface{}{"error": err.Error()})
	}
	defer store.Close()

	router, err := buildRouter(cfg, store, logger)
	if err != nil {
		logger.Fatal("failed to set up router", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("server starting", map[string]interface{}{
		"port":       cfg.Port,
		"rate_store": cfg.RateStore,
		"model":      cfg.UpstreamModel,
		"providers":  llm.ListProviders(),
	})
	setupGracefulShutdown(router, cfg.Port, logger)
}

func newWindowStore(cfg *config.Config) (auth.WindowStore, error) {
	if cfg.RateStore != config.RateStoreRedis {
		return auth.NewWindowStore(auth.StoreTypeMemory)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return auth.NewWindowStore(auth.StoreTypeRedis, auth.WithRedisClient(client))
}

func buildRouter(cfg *config.Config, store auth.WindowStore, logger *utils.Logger) (*gin.Engine, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret), auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		return nil, err
	}
	if tokens.Ephemeral() {
		logger.Warn("JWT_SECRET not set, using a per-process secret; sessions will not survive a restart", nil)
	}
	if cfg.APIKey == "" {
		logger.Warn("API_KEY not set, every gated request will be rejected", nil)
	}

	rate := auth.NewRateGate(store,
		auth.WithQuota(cfg.RateLimitQuota),
		auth.WithWindow(cfg.RateLimitWindow),
	)
	gate := auth.NewAccessGate(cfg.APIKey, tokens, rate)

	provider, err := llm.GetProvider(chatcompat.Name, map[string]string{
		"api_key":       cfg.UpstreamAPIKey,
		"base_url":      cfg.UpstreamURL,
		"default_model": cfg.UpstreamModel,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream provider: %w", err)
	}

	metrics := utils.NewChatMetrics(nil)
	builder := services.NewContextBuilder(nil)
	relay := services.NewChatRelay(provider, builder,
		services.WithRelayTimeout(cfg.UpstreamTimeout),
		services.WithModel(cfg.UpstreamModel),
		services.WithHTMLFormatting(true),
		services.WithRelayLogger(logger),
		services.WithRelayMetrics(metrics),
	)

	return api.SetupRouter(api.Deps{
		Gate:           gate,
		Relay:          relay,
		Traits:         services.NewTraitGenerator(relay),
		Personalities:  services.NewPersonalityService(builder),
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		StaticDir:      cfg.StaticDir,
		DebugMode:      cfg.DebugMode,
	})
}

func setupGracefulShutdown(router *gin.Engine, port string, logger *utils.Logger) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", map[string]interface{}{"error": err.Error()})
		return
	}
	logger.Info("server stopped", nil)
}
