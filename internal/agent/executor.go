package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"calbot/internal/tools"
)

type toolsetExecutor struct {
	toolset *tools.Toolset
	defs    []ToolDefinition
}

// NewToolExecutor adapts a calendar Toolset to the ToolExecutor interface.
func NewToolExecutor(toolset *tools.Toolset) (ToolExecutor, error) {
	var defs []ToolDefinition
	for _, tool := range toolset.Tools() {
		params, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", tool.Name, err)
		}
		defs = append(defs, ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return &toolsetExecutor{toolset: toolset, defs: defs}, nil
}

func (e *toolsetExecutor) ListTools() []ToolDefinition {
	return e.defs
}

func (e *toolsetExecutor) Execute(ctx context.Context, call ToolCall) string {
	return e.toolset.Call(ctx, call.Name, call.Arguments)
}
