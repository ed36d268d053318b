// internal/services/llm_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/utils"
)

// Upstream sampling parameters.
const (
	DefaultMaxTokens    = 90000
	DefaultRelayTimeout = 60 * time.Second

	upstreamTopP             = 0.92
	upstreamFrequencyPenalty = 0.4
	upstreamPresencePenalty  = 0.3
)

// ChatRelay forwards conversations to the upstream completion provider.
type ChatRelay struct {
	provider   llm.Provider
	builder    *ContextBuilder
	timeout    time.Duration
	model      string
	maxTokens  int
	formatHTML bool
	logger     *utils.Logger
	metrics    *utils.ChatMetrics
}

// RelayOption configures a ChatRelay.
type RelayOption func(*ChatRelay)

// WithRelayTimeout bounds every upstream call.
func WithRelayTimeout(d time.Duration) RelayOption {
	return func(r *ChatRelay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithModel sets the model name sent upstream.
func WithModel(model string) RelayOption {
	return func(r *ChatRelay) { r.model = model }
}

// WithMaxTokens sets max_tokens.
func WithMaxTokens(n int) RelayOption {
	return func(r *ChatRelay) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithHTMLFormatting turns reply newlines into <br> on blocking sends.
func WithHTMLFormatting(enabled bool) RelayOption {
	return func(r *ChatRelay) { r.formatHTML = enabled }
}

func WithRelayLogger(l *utils.Logger) RelayOption {
	return func(r *ChatRelay) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRelayMetrics(m *utils.ChatMetrics) RelayOption {
	return func(r *ChatRelay) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewChatRelay creates a relay over provider. A nil builder gets one on the
// wall clock.
func NewChatRelay(provider llm.Provider, builder *ContextBuilder, opts ...RelayOption) *ChatRelay {
	if builder == nil {
		builder = NewContextBuilder(nil)
	}
	r := &ChatRelay{
		provider:  provider,
		builder:   builder,
		timeout:   DefaultRelayTimeout,
		maxTokens: DefaultMaxTokens,
		logger:    utils.GetLogger(),
		metrics:   utils.NewChatMetrics(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Builder returns the relay's context builder.
func (r *ChatRelay) Builder() *ContextBuilder {
	return r.builder
}

// prepare renders req into the history sent upstream.
func (r *ChatRelay) prepare(req *models.ChatRequest) (models.ConversationHistory, error) {
	prepared, err := r.builder.Prepare(req)
	if err != nil {
		return nil, err
	}
	history := prepared.History
	if req.IsFirstMessage {
		history = AugmentFirstMessage(history)
	}
	return history, nil
}

// Send relays an inbound chat request and returns the upstream answer.
func (r *ChatRelay) Send(ctx context.Context, req *models.ChatRequest) (*models.AssistantReply, error) {
	history, err := r.prepare(req)
	if err != nil {
		return nil, err
	}
	return r.SendHistory(ctx, history, req.EffectiveTemperature())
}

// SendHistory issues one upstream call with history and temperature. The
// caller has already validated temperature.
func (r *ChatRelay) SendHistory(ctx context.Context, history models.ConversationHistory, temperature float64) (*models.AssistantReply, error) {
	resp, err := r.complete(ctx, r.completionRequest(toMessages(history), temperature))
	if err != nil {
		return nil, err
	}

	reply := &models.AssistantReply{Content: resp.Text, Raw: resp.Raw}
	if r.formatHTML {
		raw, content, err := formatReplyHTML(resp.Raw)
		if err != nil {
			return nil, apperrors.NewMalformedResponseError("upstream reply could not be formatted", err)
		}
		reply.Raw, reply.Content = raw, content
	}
	return reply, nil
}

// Complete performs a bounded blocking completion over raw messages. Only the
// model, max_tokens and temperature are sent; the chat sampling parameters
// are left to the upstream defaults.
func (r *ChatRelay) Complete(ctx context.Context, messages []llm.Message, temperature float64) (*llm.CompletionResponse, error) {
	return r.complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: temperature,
	})
}

func (r *ChatRelay) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.provider.CompleteText(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		status, _ := apperrors.UpstreamStatus(err)
		r.metrics.RecordRelay(status, err, elapsed)
		r.logger.Warn("upstream completion failed", map[string]interface{}{
			"kind":        string(apperrors.TypeOf(err)),
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"error":       err.Error(),
		})
		return nil, err
	}

	r.metrics.RecordRelay(http.StatusOK, nil, elapsed)
	r.logger.Debug("upstream completion succeeded", map[string]interface{}{
		"model":       resp.ModelName,
		"tokens":      resp.TokensUsed,
		"duration_ms": elapsed.Milliseconds(),
	})
	return resp, nil
}

// Stream relays req with a streamed upstream call. The returned channel always
// ends with a Done chunk, which carries Err when the stream stopped early. The
// relay timeout bounds the whole stream.
func (r *ChatRelay) Stream(ctx context.Context, req *models.ChatRequest) (<-chan models.ReplyChunk, error) {
	history, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	start := time.Now()

	upstream, err := r.provider.StreamCompletion(ctx, r.completionRequest(toMessages(history), req.EffectiveTemperature()))
	if err != nil {
		cancel()
		status, _ := apperrors.UpstreamStatus(err)
		r.metrics.RecordRelay(status, err, time.Since(start))
		return nil, err
	}

	out := make(chan models.ReplyChunk)
	go func() {
		defer cancel()
		defer close(out)

		var streamErr error
		defer func() {
			status := http.StatusOK
			if streamErr != nil {
				status = 0
			}
			r.metrics.RecordRelay(status, streamErr, time.Since(start))
		}()

		for part := range upstream {
			chunk := models.ReplyChunk{
				Content:      part.Text,
				FinishReason: part.FinishReason,
				Done:         part.Done,
				Err:          part.Err,
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				// drain so the provider goroutine can exit
				for range upstream {
				}
				streamErr = streamEndError(ctx, part.Err)
				sendFinalChunk(out, streamErr)
				return
			}
			if part.Err != nil {
				streamErr = part.Err
				return
			}
			if part.Done {
				return
			}
		}

		// upstream closed without a final chunk
		streamErr = streamEndError(ctx, nil)
		sendFinalChunk(out, streamErr)
	}()

	return out, nil
}

// finalChunkWait bounds delivery of the closing error chunk to a consumer
// that may already be gone.
const finalChunkWait = time.Second

func sendFinalChunk(out chan<- models.ReplyChunk, err error) {
	timer := time.NewTimer(finalChunkWait)
	defer timer.Stop()
	select {
	case out <- models.ReplyChunk{FinishReason: "error", Done: true, Err: err}:
	case <-timer.C:
	}
}

// streamEndError names why a stream stopped before its final chunk.
func streamEndError(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return streamContextError(ctx)
	}
	return apperrors.NewMalformedResponseError("upstream stream ended before completion", nil)
}

func streamContextError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.NewTimeoutError(ctx.Err())
	}
	return apperrors.NewProcessingError("stream cancelled", ctx.Err())
}

func (r *ChatRelay) completionRequest(messages []llm.Message, temperature float64) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:         messages,
		Model:            r.model,
		MaxTokens:        r.maxTokens,
		Temperature:      temperature,
		TopP:             upstreamTopP,
		FrequencyPenalty: upstreamFrequencyPenalty,
		PresencePenalty:  upstreamPresencePenalty,
	}
}

func toMessages(history models.ConversationHistory) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return messages
}

// FormatHTML converts reply newlines into <br>.
func FormatHTML(content string) string {
	return strings.ReplaceAll(content, "\n", "<br>")
}

// formatReplyHTML rewrites choices[0].message.content of an upstream body and
// leaves every other field as received.
func formatReplyHTML(raw json.RawMessage) (json.RawMessage, string, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, "", err
	}

	var choices []map[string]json.RawMessage
	if err := json.Unmarshal(body["choices"], &choices); err != nil {
		return nil, "", err
	}
	if len(choices) == 0 {
		return raw, "", nil
	}

	var message map[string]json.RawMessage
	if err := json.Unmarshal(choices[0]["message"], &message); err != nil {
		return nil, "", err
	}
	var content string
	if err := json.Unmarshal(message["content"], &content); err != nil {
		return nil, "", err
	}

	content = FormatHTML(content)
	encoded, err := marshalNoEscape(content)
	if err != nil {
		return nil, "", err
	}
	message["content"] = encoded

	if choices[0]["message"], err = marshalNoEscape(message); err != nil {
		return nil, "", err
	}
	if body["choices"], err = marshalNoEscape(choices); err != nil {
		return nil, "", err
	}
	out, err := marshalNoEscape(body)
	if err != nil {
		return nil, "", err
	}
	return out, content, nil
}

// marshalNoEscape encodes v leaving <br> unescaped.
func marshalNoEscape(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
