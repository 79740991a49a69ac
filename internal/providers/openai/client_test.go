package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ChatCompletion(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "web_search", "arguments": "{\"query\":\"MRVL\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewClient("gpt-4o-mini", providers.Settings{BaseURL: srv.URL, APIKey: "sk-test", Temperature: 0.6, MaxOutputTokens: 256})
	assert.True(t, c.SupportsFeature(providers.FeatureTools))
	assert.True(t, c.SupportsFeature(providers.FeatureJSONMode))

	resp, err := c.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "sys"},
			{Role: providers.RoleUser, Content: "hi"},
		},
		Tools: []providers.Tool{{Type: "function", Function: providers.Function{Name: "web_search", Parameters: map[string]any{"type": "object"}}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.6, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 256, *got.MaxTokens)
	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hi", *got.Messages[1].Content)

	msg, err := resp.FirstMessage()
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "web_search", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"MRVL"}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestClient_ToolRoundTripAndJSONMode(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient("m", providers.Settings{BaseURL: srv.URL})
	temp := 0.0

	resp, err := c.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:       "override",
		Temperature: &temp,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: "q"},
			{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{{ID: "c1", Function: providers.FunctionCall{Name: "t", Arguments: "{}"}}}},
			{Role: providers.RoleTool, ToolCallID: "c1", Name: "t", Content: "result"},
		},
		ResponseFormat: &providers.ResponseFormat{Type: "json_object"},
	})
	require.NoError(t, err)

	assert.Equal(t, "override", got.Model)
	assert.InDelta(t, 0.0, *got.Temperature, 1e-9)
	assert.Nil(t, got.MaxTokens)
	assert.Nil(t, got.Messages[1].Content, "assistant tool-call message carries null content")
	assert.Equal(t, "function", got.Messages[1].ToolCalls[0].Type)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)

	msg, err := resp.FirstMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, msg.Content)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, providers.ErrInvalidAPIKey},
		{http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate"}}`, providers.ErrRateLimitExceeded},
		{http.StatusNotFound, `{"error":{"message":"no model","type":"x"}}`, providers.ErrModelNotFound},
		{http.StatusBadRequest, `{}`, providers.ErrInvalidRequest},
		{http.StatusServiceUnavailable, `{"error":{"message":"down","type":"x"}}`, providers.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("m", providers.Settings{BaseURL: srv.URL})
			_, err := c.ChatCompletion(context.Background(), &providers.ChatRequest{
				Messages: []providers.Message{{Role: providers.RoleUser, Content: "q"}},
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFactory(t *testing.T) {
	_, err := Factory(context.Background(), "m", providers.Settings{})
	assert.Error(t, err)

	p, err := Factory(context.Background(), "m", providers.Settings{BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
	assert.Equal(t, "m", p.Model())
}
