package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbot/internal/calendar"
	"calbot/internal/tools"
)

func newTestServer(t *testing.T) (*Server, *tools.Toolset) {
	t.Helper()
	provider := calendar.NewMemoryProvider()
	require.NoError(t, provider.Authenticate(context.Background()))
	toolset := tools.New(provider)
	srv, err := New(toolset, "test", nil)
	require.NoError(t, err)
	return srv, toolset
}

func rpc(t *testing.T, srv *Server, msg string) map[string]any {
	t.Helper()
	resp := srv.MCPServer().HandleMessage(context.Background(), json.RawMessage(msg))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestListToolsExposesCalendarTools(t *testing.T) {
	srv, _ := newTestServer(t)

	rpc(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
	resp := rpc(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "unexpected response: %v", resp)
	list, ok := result["tools"].([]any)
	require.True(t, ok)

	schemas := map[string]map[string]any{}
	for _, item := range list {
		tool := item.(map[string]any)
		schemas[tool["name"].(string)], _ = tool["inputSchema"].(map[string]any)
	}
	assert.Len(t, schemas, 5)
	require.Contains(t, schemas, tools.AddEventTool)
	assert.Equal(t, "object", schemas[tools.AddEventTool]["type"])
	assert.ElementsMatch(t, []any{"title", "start_datetime", "end_datetime"}, schemas[tools.AddEventTool]["required"])
}

func callTool(t *testing.T, name string, toolset *tools.Toolset, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := handler(toolset, name)(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestCallToolRoundTrip(t *testing.T) {
	_, toolset := newTestServer(t)

	created := callTool(t, tools.AddEventTool, toolset, map[string]any{
		"title":          "Dentist",
		"start_datetime": "2025-10-20T09:00:00",
		"end_datetime":   "2025-10-20T10:00:00",
		"timezone":       "Europe/Berlin",
	})
	assert.False(t, created.IsError)
	assert.Contains(t, resultText(t, created), "Event created: Dentist")

	listed := callTool(t, tools.ListEventsTool, toolset, nil)
	assert.False(t, listed.IsError)
	assert.Contains(t, resultText(t, listed), "Found 1 event(s):")
}

func TestCallToolFailureIsToolError(t *testing.T) {
	_, toolset := newTestServer(t)

	result := callTool(t, tools.GetEventTool, toolset, map[string]any{"event_id": "missing"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to get event")
}
