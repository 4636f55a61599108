package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "support-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "support-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 11, "completion_tokens": 3, "total_tokens": 14},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIBackendComplete(t *testing.T) {
	srv := newCompletionServer(t, http.StatusOK, "Your order shipped.")
	b, err := NewOpenAIBackend(&Config{Provider: "custom", Model: "support-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := b.Complete(context.Background(), &Request{Messages: []Message{UserMessage("status?")}, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "Your order shipped.", resp.Content)
	assert.Equal(t, "custom", resp.Backend)
	assert.Equal(t, 14, resp.Stats.TotalTokens)
}

func TestOpenAIBackendErrors(t *testing.T) {
	t.Run("server error classifies as server", func(t *testing.T) {
		srv := newCompletionServer(t, http.StatusServiceUnavailable, "")
		b, err := NewOpenAIBackend(&Config{Provider: "custom", Model: "support-mini", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = b.Complete(context.Background(), &Request{Messages: []Message{UserMessage("x")}})
		require.Error(t, err)
		assert.Equal(t, ClassServer, ClassifyError(err))
	})

	t.Run("blank content is empty", func(t *testing.T) {
		srv := newCompletionServer(t, http.StatusOK, "   ")
		b, err := NewOpenAIBackend(&Config{Provider: "custom", Model: "support-mini", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = b.Complete(context.Background(), &Request{Messages: []Message{UserMessage("x")}})
		assert.ErrorIs(t, err, ErrEmptyCompletion)
	})

	t.Run("local limiter rejects", func(t *testing.T) {
		srv := newCompletionServer(t, http.StatusOK, "ok")
		b, err := NewOpenAIBackend(&Config{Provider: "custom", Model: "support-mini", BaseURL: srv.URL, RPS: 0.001})
		require.NoError(t, err)

		_, err = b.Complete(context.Background(), &Request{Messages: []Message{UserMessage("x")}})
		require.NoError(t, err)
		_, err = b.Complete(context.Background(), &Request{Messages: []Message{UserMessage("x")}})
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("model required", func(t *testing.T) {
		_, err := NewOpenAIBackend(&Config{Provider: "openai"})
		assert.Error(t, err)
	})
}
