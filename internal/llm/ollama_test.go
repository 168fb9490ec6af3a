package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbot/internal/agent"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(srv.URL+"/", "llama3.1", 0.3, WithHTTPClient(srv.Client()))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCompleteSendsConversationAndTools(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ollama", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "llama3.1",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "All set."},
			}},
		})
	})

	msg, err := client.Complete(context.Background(), agent.ChatRequest{
		Messages: []agent.Message{
			{Role: agent.RoleSystem, Content: "be helpful"},
			{Role: agent.RoleUser, Content: "hi"},
			{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{ID: "call_1", Name: "list_calendar_events", Arguments: "{}"}}},
			{Role: agent.RoleTool, Content: "No events found matching your criteria.", ToolCallID: "call_1", Name: "list_calendar_events"},
		},
		Tools: []agent.ToolDefinition{{
			Name:        "list_calendar_events",
			Description: "List events",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, agent.RoleAssistant, msg.Role)
	assert.Equal(t, "All set.", msg.Content)
	assert.Empty(t, msg.ToolCalls)

	assert.Equal(t, "llama3.1", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 0.001)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.Len(t, got.Messages[2].ToolCalls, 1)
	assert.Equal(t, "list_calendar_events", got.Messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", got.Messages[3].ToolCallID)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, got.Tools[0].Type)
	assert.Equal(t, "list_calendar_events", got.Tools[0].Function.Name)
}

func TestCompleteSendsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(t, w, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": "ok"},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	client := NewOllamaClient(srv.URL, "llama3.1", 0, WithHTTPClient(srv.Client()))

	_, err := client.Complete(context.Background(), agent.ChatRequest{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 1e-6)
}

func TestCompleteParsesToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": "chatcmpl-2",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{
						{"id": "call_a", "type": "function", "function": map[string]any{"name": "get_calendar_event", "arguments": `{"event_id":"abc"}`}},
						{"id": "call_b", "type": "function", "function": map[string]any{"name": "list_calendar_events", "arguments": ""}},
					},
				},
			}},
		})
	})

	msg, err := client.Complete(context.Background(), agent.ChatRequest{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "show abc"}},
	})
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, agent.ToolCall{ID: "call_a", Name: "get_calendar_event", Arguments: `{"event_id":"abc"}`}, msg.ToolCalls[0])
	assert.Equal(t, "{}", msg.ToolCalls[1].Arguments)
}

func TestCompleteNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "chatcmpl-3", "choices": []any{}})
	})

	_, err := client.Complete(context.Background(), agent.ChatRequest{})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestCompleteBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
	})

	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), agent.ChatRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat completion with llama3.1 failed")
	}

	_, err := client.Complete(context.Background(), agent.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), hits.Load())
}
