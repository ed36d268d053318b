// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/PersonaChat/internal/auth"
	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Frame types sent to websocket clients.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// wsFrame is one server-to-client message.
type wsFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := h.allowedOrigins[origin]
			return ok
		},
	}
}

// ChatWebSocket streams replies over a websocket. The connection is admitted
// once by the gate; every request after the first counts against the rate
// window again. Each text message is a chat request body and is answered
// with chunk frames followed by a done frame.
func (h *Handler) ChatWebSocket(c *gin.Context) {
	authCtx, ok := GetAuthContext(c)
	if !ok {
		h.Response.Error(c, apperrors.NewUnauthenticatedError(MsgNoToken, nil))
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", map[string]interface{}{
			"request_id": requestID(c),
			"error":      err.Error(),
		})
		return
	}
	defer conn.Close()

	session := &wsSession{
		handler: h,
		conn:    conn,
		authCtx: authCtx,
		reqID:   requestID(c),
	}
	session.run()
}

type wsSession struct {
	handler *Handler
	conn    *websocket.Conn
	authCtx *auth.AuthContext
	reqID   string
}

func (s *wsSession) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.handler.maxBodyBytes > 0 {
		s.conn.SetReadLimit(s.handler.maxBodyBytes)
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	requests := make(chan []byte)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx, cancel, requests)
	}()
	go func() {
		defer wg.Done()
		s.pingLoop(ctx)
	}()
	defer wg.Wait()
	// closing the connection unblocks the reader
	defer s.conn.Close()
	defer cancel()

	first := true
	for payload := range requests {
		if !first {
			status, err := s.handler.Gate.RateGate().Check(ctx, s.authCtx.UserID)
			s.authCtx.Rate = status
			if err != nil {
				s.handler.Metrics.RecordRejection(string(apperrors.TypeOf(err)))
				if !s.writeError(err) {
					return
				}
				continue
			}
			s.handler.Metrics.RecordAdmission()
		}
		first = false

		if !s.relay(ctx, payload) {
			return
		}
	}
}

// readLoop forwards text messages until the peer goes away.
func (s *wsSession) readLoop(ctx context.Context, cancel context.CancelFunc, out chan<- []byte) {
	defer close(out)
	defer cancel()
	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// relay answers one request and reports whether the connection is usable.
func (s *wsSession) relay(ctx context.Context, payload []byte) bool {
	var req models.ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.write(wsFrame{Type: FrameError, Error: MsgInvalidBody})
	}
	if issues := models.Validate(&req); issues != nil {
		return s.write(wsFrame{Type: FrameError, Error: issues[0].Msg})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := s.handler.Relay.Stream(ctx, &req)
	if err != nil {
		return s.writeError(err)
	}
	// stop the relay and let its goroutine finish
	abort := func() {
		cancel()
		for range chunks {
		}
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			ok := s.writeError(chunk.Err) && ctx.Err() == nil
			abort()
			return ok
		}
		if chunk.Content != "" {
			if !s.write(wsFrame{Type: FrameChunk, Content: chunk.Content}) {
				abort()
				return false
			}
		}
		if chunk.Done {
			return s.write(wsFrame{Type: FrameDone})
		}
	}
	return ctx.Err() == nil
}

func (s *wsSession) writeError(err error) bool {
	message := MsgInternalError
	switch apperrors.HTTPStatus(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
	default:
		s.handler.Logger.Warn("websocket relay failed", map[string]interface{}{
			"request_id": s.reqID,
			"user_id":    s.authCtx.UserID,
			"error":      err.Error(),
		})
	}
	return s.write(wsFrame{Type: FrameError, Error: message})
}

func (s *wsSession) write(frame wsFrame) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(frame) == nil
}
