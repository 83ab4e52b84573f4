package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/riposta/dynamic-mcp-poc/pkg/auth"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

// serverSummary is one entry in a search_servers result.
type serverSummary struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	RequiredRole string `json:"required_role,omitempty"`
	Enabled      bool   `json:"enabled"`
}

// searchResult is the structured payload of search_servers.
type searchResult struct {
	Servers []serverSummary `json:"servers"`
	Total   int             `json:"total"`
}

// enableResult is the structured payload of enable_server.
type enableResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Tools   []string `json:"tools,omitempty"`
}

// resetResult is the structured payload of _reset.
type resetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// registerBuiltinTools installs the gateway's three entry tools. These are
// the only tools visible before any server has been enabled.
func (s *Server) registerBuiltinTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("search_servers",
			mcp.WithDescription("Search the catalog of MCP servers this gateway can enable. "+
				"Returns matching servers with their descriptions and enablement state."),
			mcp.WithString("query",
				mcp.Description("Case-insensitive substring matched against server names and descriptions. "+
					"Omit to list the full catalog.")),
		),
		s.handleSearchServers,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("enable_server",
			mcp.WithDescription("Enable a catalog server for this session. Exchanges your credentials "+
				"for server-scoped access, discovers the server's tools, and makes them callable."),
			mcp.WithString("server_name",
				mcp.Required(),
				mcp.Description("Catalog name of the server to enable.")),
		),
		s.handleEnableServer,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("_reset",
			mcp.WithDescription("Clear server enablement state. With session_id, clears only that "+
				"session; without it, clears all sessions. Registered tools stay registered but "+
				"become gated again."),
			mcp.WithString("session_id",
				mcp.Description("Session to clear. Omit to clear all session state.")),
		),
		s.handleReset,
	)
}

func (s *Server) handleSearchServers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := stringArg(request, "query")
	sessionID := sessionIDFrom(ctx)

	matches := s.catalog.Search(query)
	result := searchResult{
		Servers: make([]serverSummary, 0, len(matches)),
		Total:   len(matches),
	}
	for _, srv := range matches {
		_, enabled := s.sessions.EnabledTools(sessionID, srv.Name)
		result.Servers = append(result.Servers, serverSummary{
			Name:         srv.Name,
			Description:  srv.Description,
			RequiredRole: srv.RequiredRole,
			Enabled:      enabled,
		})
	}

	return mcp.NewToolResultStructuredOnly(result), nil
}

func (s *Server) handleEnableServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := stringArg(request, "server_name")
	if name == "" {
		return mcp.NewToolResultError("server_name is required"), nil
	}

	srv, err := s.catalog.Lookup(name)
	if err != nil {
		return mcp.NewToolResultStructuredOnly(enableResult{
			Success: false,
			Message: fmt.Sprintf("Server '%s' not found. Use search_servers to find available servers.", name),
		}), nil
	}

	sessionID := sessionIDFrom(ctx)

	// Already enabled in this session: report the recorded tools without
	// touching the exchanger or the downstream again.
	if tools, enabled := s.sessions.EnabledTools(sessionID, name); enabled {
		return mcp.NewToolResultStructuredOnly(enableResult{
			Success: true,
			Message: fmt.Sprintf("Server '%s' is already enabled", name),
			Tools:   tools,
		}), nil
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("No authenticated identity in request"), nil
	}

	// Role check runs before any token exchange.
	if !auth.HasRole(identity, srv.RequiredRole) {
		logger.Infow("Enable denied by role check",
			"server", name, "user", identity.Username, "required_role", srv.RequiredRole)
		return mcp.NewToolResultStructuredOnly(enableResult{
			Success: false,
			Message: fmt.Sprintf("Access denied: user '%s' lacks role '%s' required for server '%s'.",
				identity.Username, srv.RequiredRole, name),
		}), nil
	}

	token, err := s.exchanger.ExchangeToken(ctx, identity.Token, srv.Audience)
	if err != nil {
		if errors.Is(err, gateway.ErrAuthorizationDenied) {
			return mcp.NewToolResultStructuredOnly(enableResult{
				Success: false,
				Message: err.Error(),
			}), nil
		}
		return nil, err
	}

	tools, err := s.backend.ListTools(ctx, srv.Target(), token)
	if err != nil {
		return nil, err
	}

	// Register each discovered tool; names already taken keep their earlier
	// registration but stay visible in this server's tool list.
	toolNames := make([]string, 0, len(tools))
	for _, tool := range tools {
		s.registry.Register(srv, tool)
		toolNames = append(toolNames, tool.Name)
	}

	// Record under one lock; if a concurrent enable won, report its list.
	recorded := s.sessions.Record(sessionID, name, toolNames)

	logger.Infow("Enabled server for session",
		"server", name, "session", sessionID, "tools", len(recorded), "user", identity.Username)
	return mcp.NewToolResultStructuredOnly(enableResult{
		Success: true,
		Message: fmt.Sprintf("Server '%s' enabled successfully", name),
		Tools:   recorded,
	}), nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if sessionID := stringArg(request, "session_id"); sessionID != "" {
		if s.sessions.Reset(sessionID) {
			return mcp.NewToolResultStructuredOnly(resetResult{
				Success: true,
				Message: fmt.Sprintf("Cleared enablement state for session '%s'", sessionID),
			}), nil
		}
		return mcp.NewToolResultStructuredOnly(resetResult{
			Success: false,
			Message: fmt.Sprintf("Session '%s' not found", sessionID),
		}), nil
	}

	cleared := s.sessions.ResetAll()
	logger.Infow("Reset all session state", "sessions_cleared", cleared)
	return mcp.NewToolResultStructuredOnly(resetResult{
		Success: true,
		Message: fmt.Sprintf("Cleared enablement state for %d sessions", cleared),
	}), nil
}

// stringArg pulls a string argument out of the raw argument payload.
func stringArg(request mcp.CallToolRequest, name string) string {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	value, _ := args[name].(string)
	return value
}

// sessionIDFrom resolves the caller's session identifier: the HTTP layer's
// context entry first, the SDK's client session as fallback.
func sessionIDFrom(ctx context.Context) string {
	if id := gateway.SessionIDFromContext(ctx); id != "" {
		return id
	}
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return ""
}
