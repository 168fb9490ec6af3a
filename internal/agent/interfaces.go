package agent

import "context"

// ChatModel produces the next assistant message for a conversation.
// The Ollama client satisfies it.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (*Message, error)
}

// ToolExecutor lists and runs tools. Execute never fails; failures come back as text.
type ToolExecutor interface {
	ListTools() []ToolDefinition
	Execute(ctx context.Context, call ToolCall) string
}
