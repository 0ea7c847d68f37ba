package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
		assert.EqualValues(t, 256, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "{\"memorability\": 8}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 40}
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := c.Complete(context.Background(), CompletionRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		Prompt:    "score this domain",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"memorability": 8}`, got.Text)
	assert.Equal(t, "end_turn", got.StopReason)
	assert.EqualValues(t, 120, got.Usage.InputTokens)
	assert.EqualValues(t, 40, got.Usage.OutputTokens)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), CompletionRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		Prompt:    "score this domain",
	})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}
