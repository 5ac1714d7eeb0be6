package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/snowsentry/snowsentry/internal/core/domain"
	"github.com/snowsentry/snowsentry/internal/core/service"
)

// Server metadata
const serverName = "snowsentry"

// Tool descriptions
const (
	descListChecks = "List all security audit checks in the catalog with their kind. " +
		"Registrable checks can be installed as stored procedures; text-only checks " +
		"run as plain worksheet SQL. Call this first to discover available checks."

	descGetCheckSQL = "Return the SQL text of a check, with the account-usage namespace already " +
		"resolved. Handler-only checks (such as ACCOUNTADMIN_OWNERSHIP) have no text form " +
		"and return an error — run them with run_check instead."

	descRunCheck = "Execute an audit check against SNOWFLAKE.ACCOUNT_USAGE and return the rows " +
		"as a JSON array of objects. Nothing is registered on the account; text-backed checks " +
		"run as raw SQL and handler-only checks run their composition directly. " +
		"A server-side row cap and query timeout are enforced."

	descRegisterCheck = "Register a check as a named permanent stored procedure on the account " +
		"(replacing any prior procedure with the same name) and invoke it once. " +
		"Only registrable checks are accepted. Requires a role allowed to create procedures."

	descCheckNameParam = "Technical name of the check, e.g. NUM_FAILURES"
)

func RegisterTools(s *server.MCPServer, audit *service.AuditService) {
	s.AddTool(
		mcp.NewTool("list_checks",
			mcp.WithDescription(descListChecks),
		),
		listChecksHandler(audit),
	)

	s.AddTool(
		mcp.NewTool("get_check_sql",
			mcp.WithDescription(descGetCheckSQL),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description(descCheckNameParam),
			),
		),
		getCheckSQLHandler(audit),
	)

	s.AddTool(
		mcp.NewTool("run_check",
			mcp.WithDescription(descRunCheck),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description(descCheckNameParam),
			),
		),
		runCheckHandler(audit),
	)

	s.AddTool(
		mcp.NewTool("register_check",
			mcp.WithDescription(descRegisterCheck),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description(descCheckNameParam),
			),
		),
		registerCheckHandler(audit),
	)
}

func listChecksHandler(audit *service.AuditService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(audit.List())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func getCheckSQLHandler(audit *service.AuditService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, ok := request.GetArguments()["name"].(string)
		if !ok || name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}

		sql, err := audit.Text(name)
		if err != nil {
			if errors.Is(err, domain.ErrNoTextForm) {
				return mcp.NewToolResultError(fmt.Sprintf("%s has no text form; use run_check", name)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to get check SQL: %v", err)), nil
		}
		return mcp.NewToolResultText(sql), nil
	}
}

func runCheckHandler(audit *service.AuditService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, ok := request.GetArguments()["name"].(string)
		if !ok || name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}

		ctx = service.WithToolName(ctx, "run_check")
		rows, err := audit.Run(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to run check: %v", err)), nil
		}

		data, err := json.Marshal(rows)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func registerCheckHandler(audit *service.AuditService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, ok := request.GetArguments()["name"].(string)
		if !ok || name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}

		ctx = service.WithToolName(ctx, "register_check")
		rows, err := audit.Register(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to register check: %v", err)), nil
		}

		data, err := json.Marshal(rows)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
