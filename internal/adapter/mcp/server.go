// Package mcp exposes the audit catalog as MCP tools.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/snowsentry/snowsentry/internal/core/port"
	"github.com/snowsentry/snowsentry/internal/core/service"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, audit *service.AuditService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, audit)

	return s
}
