package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/reqtaker/internal/config"
	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
)

type countingLimiter struct{ calls atomic.Int32 }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.calls.Add(1)
	return ctx.Err()
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func fakeOpenAI(t *testing.T, reply string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   seen.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CompleteOpenAI(t *testing.T) {
	var seen chatRequest
	srv := fakeOpenAI(t, "Requirements look complete.", &seen)
	limiter := &countingLimiter{}

	c, err := New(context.Background(), Options{
		Model:   "gpt-4o",
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Limiter: limiter,
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())

	got, err := c.Complete(context.Background(), "You are a reviewer.", "Review this.")
	require.NoError(t, err)
	assert.Equal(t, "Requirements look complete.", got)
	assert.Equal(t, int32(1), limiter.calls.Load())

	assert.Equal(t, "gpt-4o", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "Review this.", seen.Messages[1].Content)
	assert.Nil(t, seen.ResponseFormat)
}

func TestClient_CompleteJSONOpenAI(t *testing.T) {
	var seen chatRequest
	srv := fakeOpenAI(t, `{"score": 8}`, &seen)

	c, err := New(context.Background(), Options{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	got, err := c.CompleteJSON(context.Background(), "", "Score it.")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 8}`, got)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	assert.Len(t, seen.Messages, 1, "empty system prompt is omitted")
}

func TestClient_ProviderErrorIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(context.Background(), Options{Model: "gpt-4o", APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Equal(t, rterrors.ErrorTypeExternal, rterrors.GetType(err))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Options{Model: "gpt-4o"})
	assert.Equal(t, rterrors.ErrorTypeConfig, rterrors.GetType(err))

	_, err = New(context.Background(), Options{APIKey: "k"})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Provider: "anthropic", Model: "x", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestNewClientForModel_InfersProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.OpenAIKey = "sk-test"
	cfg.LLM.GeminiKey = "gm-test"

	c, err := NewClientForModel(context.Background(), cfg, "gemini-2.0-flash", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, c.Provider())
	assert.Equal(t, "gemini-2.0-flash", c.Model())

	c, err = NewClient(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())
	assert.Equal(t, "gpt-4o", c.Model())

	cfg.LLM.GeminiKey = ""
	_, err = NewClientForModel(context.Background(), cfg, "gemini-1.5-pro", nil)
	assert.ErrorContains(t, err, "no API key configured for provider gemini")
}
