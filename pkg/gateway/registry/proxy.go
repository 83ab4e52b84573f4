package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/riposta/dynamic-mcp-poc/pkg/auth"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

// proxyHandler builds the handler for one proxy tool. Per call it gates on
// session enablement, validates arguments, authorizes the caller, exchanges
// the incoming token for the server's audience, and forwards downstream.
// Expected failures come back as tool error results; transport-class
// failures are returned as errors and surface as protocol failures.
func (r *Registry) proxyHandler(b *Binding) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger.Debugw("Handling proxy tool call", "tool", b.Tool.Name, "server", b.Server.Name)

		sessionID := sessionIDFrom(ctx)
		if _, enabled := r.deps.Sessions.EnabledTools(sessionID, b.Server.Name); !enabled {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Server '%s' is not enabled in this session. Call enable_server('%s') first.",
				b.Server.Name, b.Server.Name)), nil
		}

		args, err := cleanArguments(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if missing := missingRequired(b.required, args); len(missing) > 0 {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Missing required arguments for tool '%s': %s",
				b.Tool.Name, strings.Join(missing, ", "))), nil
		}

		identity, ok := auth.IdentityFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError("No authenticated identity in request"), nil
		}
		if !auth.HasRole(identity, b.Server.RequiredRole) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Access denied: user '%s' lacks role '%s' required for this tool.",
				identity.Username, b.Server.RequiredRole)), nil
		}

		// Fresh exchange on every call; exchanged tokens are never cached.
		token, err := r.deps.Exchanger.ExchangeToken(ctx, identity.Token, b.Server.Audience)
		if err != nil {
			if errors.Is(err, gateway.ErrAuthorizationDenied) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, err
		}

		result, err := r.deps.Backend.CallTool(ctx, b.Server.Target(), b.Tool.Name, args, token)
		if err != nil {
			logger.Warnw("Downstream call failed",
				"tool", b.Tool.Name, "server", b.Server.Name, "error", err)
			return nil, err
		}

		return toMCPResult(result), nil
	}
}

// sessionIDFrom resolves the caller's session. The HTTP layer stores the
// session header in the context; the SDK's client session is the fallback.
func sessionIDFrom(ctx context.Context) string {
	if id := gateway.SessionIDFromContext(ctx); id != "" {
		return id
	}
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return ""
}

// cleanArguments normalizes the raw argument payload: nil means no
// arguments, null-valued entries are dropped before forwarding.
func cleanArguments(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	args, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be an object, got %T", raw)
	}
	cleaned := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		cleaned[k] = v
	}
	return cleaned, nil
}

// missingRequired returns the schema-required argument names absent from
// args, sorted for stable messages.
func missingRequired(required []string, args map[string]any) []string {
	var missing []string
	for _, name := range required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// requiredParams pulls the top-level "required" list out of a JSON Schema.
// A malformed schema yields no required params; the downstream still
// enforces its own contract.
func requiredParams(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	var parsed struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		logger.Debugf("Could not parse tool input schema: %v", err)
		return nil
	}
	return parsed.Required
}

// toMCPResult converts a downstream result to the SDK shape, preserving the
// downstream's IsError flag.
func toMCPResult(result *gateway.ToolCallResult) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(result.Content))
	for _, c := range result.Content {
		// Downstream adapter only produces text content today.
		content = append(content, mcp.NewTextContent(c.Text))
	}
	return &mcp.CallToolResult{
		Content:           content,
		StructuredContent: result.StructuredContent,
		IsError:           result.IsError,
	}
}
