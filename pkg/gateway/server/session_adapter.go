package server

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/session"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

// sessionIDAdapter adapts the gateway's session.Manager to the mark3labs
// SDK's SessionIdManager interface. Session storage, TTL and cleanup all
// live in session.Manager; the SDK only calls these three methods during
// MCP protocol flows:
//  1. Generate() on initialize requests without an Mcp-Session-Id header
//  2. Validate() on every request carrying a session ID
//  3. Terminate() on HTTP DELETE to the MCP endpoint
type sessionIDAdapter struct {
	manager *session.Manager
}

func newSessionIDAdapter(manager *session.Manager) *sessionIDAdapter {
	return &sessionIDAdapter{manager: manager}
}

// Generate mints a new session ID and registers it with the manager.
// Per MCP spec the ID must be globally unique and contain only visible
// ASCII, which a UUID satisfies.
func (a *sessionIDAdapter) Generate() string {
	sessionID := uuid.New().String()

	if err := a.manager.Add(sessionID); err != nil {
		// UUID collision is essentially impossible; retry once anyway.
		logger.Errorw("Failed to create session", "session", sessionID, "error", err)
		sessionID = uuid.New().String()
		if err := a.manager.Add(sessionID); err != nil {
			// Empty string tells the SDK not to send an Mcp-Session-Id
			// header, so later requests fail validation cleanly.
			logger.Errorw("Failed to create session on retry", "session", sessionID, "error", err)
			return ""
		}
	}

	logger.Debugw("Generated new MCP session", "session", sessionID)
	return sessionID
}

// Validate checks that a session exists, touching it to extend its TTL.
// Unknown and expired sessions both yield an error, which the SDK maps to
// 404 per the MCP spec.
func (a *sessionIDAdapter) Validate(sessionID string) (isTerminated bool, err error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}
	if !a.manager.Exists(sessionID) {
		logger.Debugw("Session validation failed: not found", "session", sessionID)
		return false, fmt.Errorf("session not found")
	}
	return false, nil
}

// Terminate removes the session and all its enablement state. Terminating
// an unknown session succeeds; the client may be deleting one that already
// expired.
func (a *sessionIDAdapter) Terminate(sessionID string) (isNotAllowed bool, err error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}
	a.manager.Delete(sessionID)
	logger.Infow("Session terminated", "session", sessionID)
	return false, nil
}
