// Package mcp serves the crew's tools over the Model Context Protocol so
// other assistants can extract a Drive folder without running the crew.
package mcp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rohankatakam/reqtaker/internal/agent"
)

const (
	serverName    = "reqtaker"
	serverVersion = "0.1.0"
)

// ProcessFolderInput is the argument of the drive tool.
type ProcessFolderInput struct {
	FolderID string `json:"folder_id" jsonschema:"Google Drive folder ID to process for comprehensive analysis"`
}

// Handler registers agent tools on an MCP server.
type Handler struct {
	server *mcp.Server
	logger *slog.Logger
}

// NewHandler creates a server with no tools registered.
func NewHandler() *Handler {
	return &Handler{
		server: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		logger: slog.Default().With("component", "mcp"),
	}
}

// RegisterDriveTool exposes the drive tool. Extraction failures come back
// as an error result carrying the message text.
func (h *Handler) RegisterDriveTool(tool *agent.DriveTool) {
	mcp.AddTool(h.server, &mcp.Tool{
		Name:        tool.Name(),
		Title:       tool.Title(),
		Description: tool.Description(),
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ProcessFolderInput) (*mcp.CallToolResult, any, error) {
		h.logger.Info("tool call", "tool", tool.Name(), "folder_id", in.FolderID)
		text, err := tool.Call(ctx, map[string]any{"folder_id": in.FolderID})
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: strings.HasPrefix(text, agent.DriveErrorPrefix),
		}, nil, nil
	})
	h.logger.Debug("registered tool", "tool", tool.Name())
}

// Server returns the underlying MCP server.
func (h *Handler) Server() *mcp.Server { return h.server }

// ServeStdio serves requests on stdin/stdout until ctx is done or the
// client disconnects.
func (h *Handler) ServeStdio(ctx context.Context) error {
	h.logger.Info("MCP server started on stdio")
	return h.server.Run(ctx, &mcp.StdioTransport{})
}
