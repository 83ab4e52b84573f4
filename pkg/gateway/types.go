package gateway

import (
	"context"
	"encoding/json"
)

// This file contains shared domain types used across gateway subpackages.

// ServerTarget identifies a downstream MCP server and carries the
// information needed to forward requests to it.
type ServerTarget struct {
	// Name is the catalog name of the server.
	Name string

	// BaseURL is the base URL for the server's MCP endpoint.
	BaseURL string

	// TransportType specifies the MCP transport protocol.
	// Currently only "streamable-http" is supported.
	TransportType string
}

// Tool describes a downstream tool as advertised by its server.
type Tool struct {
	// Name is the tool name as the downstream server knows it.
	Name string

	// Description is the human-readable tool description.
	Description string

	// InputSchema is the tool's JSON Schema for arguments, kept verbatim so
	// the gateway re-advertises exactly what the downstream declared.
	InputSchema json.RawMessage
}

// Content is a single content block in a tool call result.
type Content struct {
	// Type is the content type: "text", "image", "audio" or "resource".
	Type string

	// Text holds the payload for text content.
	Text string
}

// ToolCallResult is the outcome of a downstream tool call.
type ToolCallResult struct {
	// Content contains the result content blocks.
	Content []Content

	// StructuredContent carries the structured result payload, if any.
	StructuredContent any

	// IsError indicates the downstream reported a tool-level error.
	// The call still succeeded at the protocol level.
	IsError bool
}

// TokenExchanger swaps the caller's incoming access token for a downstream
// token scoped to the given audience (RFC 8693). Implementations must not
// cache: every call performs a fresh exchange.
type TokenExchanger interface {
	// ExchangeToken returns the exchanged access token. A refusal by the
	// identity provider wraps ErrAuthorizationDenied; endpoint failures wrap
	// ErrExchangeUnavailable.
	ExchangeToken(ctx context.Context, subjectToken, audience string) (string, error)
}

// BackendClient talks to downstream MCP servers on behalf of the gateway.
type BackendClient interface {
	// ListTools queries the tools the target advertises, authenticating with
	// the given bearer token.
	ListTools(ctx context.Context, target *ServerTarget, token string) ([]Tool, error)

	// CallTool invokes a tool on the target with the given arguments,
	// authenticating with the given bearer token. Transport and protocol
	// failures wrap ErrDownstream; tool-level errors come back as a result
	// with IsError set.
	CallTool(ctx context.Context, target *ServerTarget, name string, args map[string]any, token string) (*ToolCallResult, error)
}

// SessionStore tracks which servers each session has enabled and the tool
// names recorded at enable time. Implementations must be safe for concurrent
// use; Record must be atomic with respect to concurrent enables.
type SessionStore interface {
	// EnabledTools returns the tool names recorded for the server in this
	// session, and whether the server is enabled at all.
	EnabledTools(sessionID, server string) ([]string, bool)

	// Record marks the server enabled in the session with the given tool
	// names. If a concurrent enable already recorded the server, the earlier
	// record wins and its tool list is returned.
	Record(sessionID, server string, tools []string) []string

	// Reset clears one session's state, reporting whether it existed.
	Reset(sessionID string) bool

	// ResetAll clears all session state, returning the number of sessions
	// dropped.
	ResetAll() int
}
