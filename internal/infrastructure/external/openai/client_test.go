package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func chatResponse(contents ...string) map[string]interface{} {
	choices := make([]map[string]interface{}, 0, len(contents))
	for i, c := range contents {
		choices = append(choices, map[string]interface{}{
			"index":         i,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": c},
		})
	}
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": choices,
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server, mutate func(*Config)) *Client {
	cfg := Config{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
		Breaker: DefaultBreakerConfig(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, zap.NewNop())
}

func TestClient_Complete(t *testing.T) {
	var got chatRequest
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"rules":[],"generalRules":[]}`))
	})
	client := newTestClient(server, nil)

	content, err := client.Complete(context.Background(), "system prompt", "user prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"rules":[],"generalRules":[]}`, content)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system prompt", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user prompt", got.Messages[1].Content)
}

func TestClient_Complete_CustomModel(t *testing.T) {
	var model string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		model = req.Model
		_ = json.NewEncoder(w).Encode(chatResponse("{}"))
	})
	client := newTestClient(server, func(cfg *Config) { cfg.Model = "gpt-4o" })

	_, err := client.Complete(context.Background(), "s", "u")

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model)
	assert.Equal(t, "gpt-4o", client.Model())
}

func TestClient_Complete_NoChoices(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse())
	})
	client := newTestClient(server, nil)

	content, err := client.Complete(context.Background(), "s", "u")

	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestClient_Complete_APIError(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	})
	client := newTestClient(server, nil)

	_, err := client.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API call failed")
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestClient_Complete_Timeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(server, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := client.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Complete_NoRetry(t *testing.T) {
	var hits int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := newTestClient(server, nil)

	_, err := client.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_Complete_BreakerOpens(t *testing.T) {
	var hits int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(server, func(cfg *Config) {
		cfg.Breaker.Name = "openai-breaker-test"
		cfg.Breaker.Timeout = time.Minute
	})

	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), "s", "u")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.breaker.state())

	_, err := client.Complete(context.Background(), "s", "u")

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_Complete_CancelledContext(t *testing.T) {
	var hits int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	client := newTestClient(server, func(cfg *Config) { cfg.RequestsPerSecond = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "s", "u")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
