// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Corphon/PersonaChat/internal/auth"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the chat API.
type Handler struct {
	Gate          *auth.AccessGate
	Relay         *services.ChatRelay
	Traits        *services.TraitGenerator
	Personalities *services.PersonalityService
	Metrics       *utils.ChatMetrics
	Logger        *utils.Logger
	Response      *ResponseHelper

	allowedOrigins map[string]struct{}
	maxBodyBytes   int64
	startedAt      time.Time
}

// NewHandler wires a handler from its services. Trait generation and
// personality rendering are built on the relay when not given.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = utils.GetLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = utils.NewChatMetrics(nil)
	}
	traits := deps.Traits
	if traits == nil {
		traits = services.NewTraitGenerator(deps.Relay)
	}
	personalities := deps.Personalities
	if personalities == nil {
		personalities = services.NewPersonalityService(deps.Relay.Builder())
	}

	origins := make(map[string]struct{}, len(deps.AllowedOrigins))
	for _, o := range deps.AllowedOrigins {
		origins[o] = struct{}{}
	}

	return &Handler{
		Gate:           deps.Gate,
		Relay:          deps.Relay,
		Traits:         traits,
		Personalities:  personalities,
		Metrics:        metrics,
		Logger:         logger,
		Response:       NewResponseHelper(logger),
		allowedOrigins: origins,
		maxBodyBytes:   deps.MaxBodyBytes,
		startedAt:      time.Now(),
	}
}

// Health reports liveness and process uptime in seconds.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Seconds(),
	})
}

// CreateSession issues a session token. The body is optional; without a
// userId a fresh UUID is assigned.
func (h *Handler) CreateSession(c *gin.Context) {
	var req models.SessionRequest
	if c.Request.ContentLength != 0 {
		if !h.Response.BindJSON(c, &req) {
			return
		}
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}

	token, expiresAt, err := h.Gate.Tokens().Issue(req.UserID)
	if err != nil {
		h.Response.Error(c, err)
		return
	}

	h.Logger.Info("session issued", map[string]interface{}{
		"request_id": requestID(c),
		"user_id":    req.UserID,
	})
	c.JSON(http.StatusOK, models.SessionResponse{
		Token:     token,
		UserID:    req.UserID,
		ExpiresAt: expiresAt,
	})
}

// Chat relays one conversation and answers with the upstream body.
func (h *Handler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if !h.Response.BindJSON(c, &req) {
		return
	}

	reply, err := h.Relay.Send(c.Request.Context(), &req)
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", reply.Raw)
}

// ChatStream relays one conversation as server-sent events. Each fragment is
// sent as data: {"content":...}; the stream ends with data: [DONE].
func (h *Handler) ChatStream(c *gin.Context) {
	var req models.ChatRequest
	if !h.Response.BindJSON(c, &req) {
		return
	}

	chunks, err := h.Relay.Stream(c.Request.Context(), &req)
	if err != nil {
		h.Response.Error(c, err)
		return
	}

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			h.logStreamError(c, chunk.Err)
			writeSSE(w, "error", gin.H{"error": MsgInternalError})
			return
		}
		if chunk.Content != "" {
			if !writeSSE(w, "", gin.H{"content": chunk.Content}) {
				return
			}
		}
		if chunk.Done {
			_, _ = w.WriteString("data: [DONE]\n\n")
			w.Flush()
			return
		}
	}
}

func (h *Handler) logStreamError(c *gin.Context, err error) {
	h.Logger.Warn("stream relay failed", map[string]interface{}{
		"request_id": requestID(c),
		"error":      err.Error(),
	})
}

// writeSSE writes one event and reports whether the client is still there.
func writeSSE(w gin.ResponseWriter, event string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if event != "" {
		if _, err := w.WriteString("event: " + event + "\n"); err != nil {
			return false
		}
	}
	if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
		return false
	}
	w.Flush()
	return true
}

// SavePersonality normalizes a profile and hands it back for local storage.
func (h *Handler) SavePersonality(c *gin.Context) {
	var req models.SavePersonalityRequest
	if !h.Response.DecodeJSON(c, &req) {
		return
	}

	personality, issues := h.Personalities.Save(&req)
	if issues != nil {
		h.Response.Validation(c, issues)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"personality": personality,
	})
}

// GenerateTraits asks the upstream for a trait list.
func (h *Handler) GenerateTraits(c *gin.Context) {
	var req models.TraitRequest
	if !h.Response.BindJSON(c, &req) {
		return
	}

	traits, err := h.Traits.Generate(c.Request.Context(), &req)
	if err != nil {
		h.Response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generatedTraits": traits})
}

// RenderContext renders the system prompt and turn context with the server clock.
func (h *Handler) RenderContext(c *gin.Context) {
	var req models.ContextRequest
	if !h.Response.BindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.Personalities.RenderContext(&req))
}

// GetMetrics returns the collector snapshot.
func (h *Handler) GetMetrics(c *gin.Context) {
	snapshot := h.Metrics.Collector().Snapshot()
	snapshot["uptime"] = time.Since(h.startedAt).Seconds()
	c.JSON(http.StatusOK, snapshot)
}
