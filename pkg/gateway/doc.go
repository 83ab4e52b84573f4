// Package gateway contains the core domain types for the dynamic MCP
// gateway: the server catalog descriptors, downstream tool and call shapes,
// the interfaces the gateway core composes (token exchange, downstream
// client, session state), and the domain error sentinels.
//
// Subpackages provide the concrete pieces: catalog (server catalog),
// client (downstream MCP client adapter), session (per-session enablement
// state), registry (global proxy-tool registrar), server (the MCP-facing
// gateway core), and config (YAML configuration).
package gateway
