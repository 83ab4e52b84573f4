package gateway

import "errors"

// Common domain errors used across gateway subpackages.
// These errors should be checked using errors.Is().

var (
	// ErrNotFound indicates a requested resource (server, tool) was not found.
	// Wrapping errors should say what was not found.
	ErrNotFound = errors.New("not found")

	// ErrAuthorizationDenied indicates the caller is authenticated but not
	// allowed: a missing role, or a token exchange the identity provider
	// refused. Wrapping errors carry the user-facing denial message.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrExchangeUnavailable indicates the token exchange endpoint could not
	// be reached or answered outside the protocol (network failure, 5xx,
	// malformed response). Distinct from ErrAuthorizationDenied.
	ErrExchangeUnavailable = errors.New("token exchange unavailable")

	// ErrDownstream indicates a downstream MCP server call failed at the
	// transport or protocol level. Wrapping errors name the server.
	ErrDownstream = errors.New("downstream server error")

	// ErrServerNotEnabled indicates a proxied call in a session that has not
	// enabled the owning server.
	ErrServerNotEnabled = errors.New("server not enabled in session")

	// ErrInvalidConfig indicates invalid configuration was provided.
	ErrInvalidConfig = errors.New("invalid configuration")
)
