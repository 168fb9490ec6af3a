// Package agent runs the conversational loop: history and date context go to the
// model, requested calendar tools are executed, and results are fed back until the
// model answers in text or the round limit is hit.
package agent

import "encoding/json"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a model conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is one completion request.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
}

// HistoryEntry is a role/content pair of the conversation history.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
