// Package mcpserver exposes the calendar tools to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"calbot/internal/logging"
	"calbot/internal/tools"
)

const serverName = "calbot"

// Server serves a Toolset as MCP tools.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New registers every tool of toolset on a new MCP server.
func New(toolset *tools.Toolset, version string, logger *slog.Logger) (*Server, error) {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	for _, tool := range toolset.Tools() {
		schema, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", tool.Name, err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(tool.Name, tool.Description, schema), handler(toolset, tool.Name))
	}
	return &Server{mcp: s, logger: logging.WithComponent(logger, "mcp")}, nil
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over the given streams until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Serving calendar tools over MCP stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func handler(toolset *tools.Toolset, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		result := toolset.Invoke(ctx, name, string(args))
		if result.Failed {
			return mcp.NewToolResultError(result.Text), nil
		}
		return mcp.NewToolResultText(result.Text), nil
	}
}
