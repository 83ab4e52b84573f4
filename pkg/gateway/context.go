package gateway

import "context"

// sessionIDContextKey is the context key for the MCP session identifier.
// An empty struct key avoids collisions with other packages.
type sessionIDContextKey struct{}

// WithSessionID returns a context carrying the MCP session identifier.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, sessionID)
}

// SessionIDFromContext extracts the MCP session identifier from the context.
// Returns the empty string when none is set.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey{}).(string)
	return id
}
