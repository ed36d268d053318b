// internal/llm/providers/chatcompat/chatcompat.go
package chatcompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
)

// Name is the registry name of this provider.
const Name = "chatcompat"

const (
	defaultBaseURL = "https://api.chai-research.com/v1"
	defaultModel   = "chai_v3"

	// upper bound on a buffered upstream body
	maxResponseBytes = 8 << 20
	// how much of an error body is kept in the wrapped error
	maxErrorBodyBytes = 2048
)

func init() {
	llm.Register(Name, func() llm.Provider {
		return &Provider{baseURL: defaultBaseURL}
	})
}

// Provider talks to any endpoint that speaks the chat-completions wire format.
type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
}

// Initialize recognizes api_key (required), base_url and default_model.
func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("upstream API key not configured")
	}

	p.apiKey = apiKey
	if p.client == nil {
		p.client = &http.Client{}
	}

	p.defaultModel = defaultModel
	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	return nil
}

// SetHTTPClient replaces the client used for upstream calls.
func (p *Provider) SetHTTPClient(client *http.Client) {
	if client != nil {
		p.client = client
	}
}

func (p *Provider) GetName() string {
	return "ChatCompat"
}

type completionBody struct {
	Model            string        `json:"model"`
	Messages         []llm.Message `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

func (p *Provider) newRequest(ctx context.Context, req llm.CompletionRequest, stream bool) (*http.Request, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := completionBody{
		Model:            model,
		Messages:         req.Messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stream:           stream,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to encode upstream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to build upstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

// do sends httpReq and turns transport failures and non-200 statuses into
// typed errors. On success the caller owns the response body.
func (p *Provider) do(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
		return nil, apperrors.NewUpstreamFailure(httpResp.StatusCode,
			fmt.Errorf("upstream error body: %s", strings.TrimSpace(string(body))))
	}
	return httpResp, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError(err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewProcessingError("upstream request cancelled", err)
	}
	// no response at all: status 0
	return apperrors.NewUpstreamFailure(0, err)
}

type completionResult struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// CompleteText implements llm.Provider.
func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	var result completionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.NewMalformedResponseError("upstream body is not valid JSON", err)
	}
	if len(result.Choices) == 0 {
		return nil, apperrors.NewMalformedResponseError("upstream returned no choices", nil)
	}
	if result.Choices[0].Message.Content == nil {
		return nil, apperrors.NewMalformedResponseError("upstream reply has no content", nil)
	}

	return &llm.CompletionResponse{
		Text:         *result.Choices[0].Message.Content,
		FinishReason: result.Choices[0].FinishReason,
		TokensUsed:   result.Usage.TotalTokens,
		ModelName:    result.Model,
		ProviderName: p.GetName(),
		Raw:          raw,
	}, nil
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	respChan := make(chan llm.StreamResponse)

	go func() {
		defer httpResp.Body.Close()
		defer close(respChan)

		send := func(r llm.StreamResponse) bool {
			select {
			case respChan <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReader(httpResp.Body)
		var modelName string

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					send(llm.StreamResponse{FinishReason: "stop", ModelName: modelName, Done: true})
				} else {
					send(llm.StreamResponse{FinishReason: "error", Done: true, Err: transportError(ctx, err)})
				}
				return
			}

			line = strings.TrimSpace(line)
			// blank separators and comments
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			if line == "[DONE]" {
				send(llm.StreamResponse{FinishReason: "stop", ModelName: modelName, Done: true})
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				send(llm.StreamResponse{
					FinishReason: "error",
					Done:         true,
					Err:          apperrors.NewMalformedResponseError("invalid stream chunk", err),
				})
				return
			}

			if chunk.Model != "" && modelName == "" {
				modelName = chunk.Model
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			if content := chunk.Choices[0].Delta.Content; content != "" {
				if !send(llm.StreamResponse{Text: content, ModelName: modelName}) {
					return
				}
			}
			if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
				send(llm.StreamResponse{FinishReason: *fr, ModelName: modelName, Done: true})
				return
			}
		}
	}()

	return respChan, nil
}
