package chatcompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/Corphon/PersonaChat/internal/errors"
	"github.com/Corphon/PersonaChat/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := llm.GetProvider(Name, map[string]string{
		"api_key":  "upstream-key",
		"base_url": srv.URL + "/",
	})
	require.NoError(t, err)

	provider := p.(*Provider)
	provider.SetHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}})
	return provider
}

func testRequest() llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		Temperature: 0.5,
		TopP:        0.92,
		MaxTokens:   100,
	}
}

func TestInitializeRequiresKey(t *testing.T) {
	_, err := llm.GetProvider(Name, map[string]string{})
	assert.Error(t, err)
}

func TestCompleteTextSuccess(t *testing.T) {
	var got map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer upstream-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"chai_v3","choices":[{"message":{"role":"assistant","content":"hello\nthere"},"finish_reason":"stop"}],"usage":{"total_tokens":7}}`)
	})

	resp, err := p.CompleteText(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "hello\nthere", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 7, resp.TokensUsed)
	assert.Contains(t, string(resp.Raw), `"usage"`)

	assert.Equal(t, "chai_v3", got["model"])
	assert.Equal(t, 0.92, got["top_p"])
	assert.Equal(t, 0.5, got["temperature"])
	assert.Nil(t, got["stream"])
	assert.Len(t, got["messages"], 2)
}

func TestCompleteTextFailures(t *testing.T) {
	t.Run("upstream 500", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := p.CompleteText(context.Background(), testRequest())
		require.Error(t, err)

		status, ok := apperrors.UpstreamStatus(err)
		require.True(t, ok)
		assert.Equal(t, 500, status)
	})

	t.Run("empty choices", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		})
		_, err := p.CompleteText(context.Background(), testRequest())
		assert.True(t, apperrors.IsMalformedResponse(err))
	})

	t.Run("invalid json", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>gateway</html>`)
		})
		_, err := p.CompleteText(context.Background(), testRequest())
		assert.True(t, apperrors.IsMalformedResponse(err))
	})

	t.Run("deadline", func(t *testing.T) {
		release := make(chan struct{})
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := p.CompleteText(ctx, testRequest())
		assert.True(t, apperrors.IsTimeout(err))
	})
}

func TestStreamCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"model":"chai_v3","choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.StreamCompletion(context.Background(), testRequest())
	require.NoError(t, err)

	var parts []llm.StreamResponse
	for r := range ch {
		parts = append(parts, r)
	}

	require.Len(t, parts, 3)
	assert.Equal(t, "Hel", parts[0].Text)
	assert.Equal(t, "chai_v3", parts[0].ModelName)
	assert.Equal(t, "lo", parts[1].Text)
	assert.True(t, parts[2].Done)
	assert.Equal(t, "stop", parts[2].FinishReason)
	assert.NoError(t, parts[2].Err)
}

func TestStreamCompletionUpstreamStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := p.StreamCompletion(context.Background(), testRequest())
	status, ok := apperrors.UpstreamStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestStreamCompletionCancel(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%d\"}}]}\n\n", i); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.StreamCompletion(ctx, testRequest())
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "0", first.Text)
	cancel()

	// the channel must close once the context is gone
	for range ch {
	}
}
