// Package server implements the gateway core: the MCP-facing server that
// exposes the built-in entry tools, mints sessions, and grows its tool
// surface as sessions enable downstream servers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/catalog"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/registry"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/session"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

const (
	// defaultReadHeaderTimeout prevents slowloris attacks by limiting time to read request headers.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout is the maximum duration for reading the entire request, including body.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the maximum duration before timing out writes of the response.
	defaultWriteTimeout = 30 * time.Second

	// defaultIdleTimeout is the maximum time to wait for the next request on a kept-alive connection.
	defaultIdleTimeout = 120 * time.Second

	// defaultMaxHeaderBytes is the maximum size of request headers in bytes (1 MB).
	defaultMaxHeaderBytes = 1 << 20

	// defaultShutdownTimeout is the maximum time to wait for graceful shutdown.
	defaultShutdownTimeout = 10 * time.Second

	// sessionIDHeader is the MCP session header on streamable HTTP requests.
	sessionIDHeader = "Mcp-Session-Id"
)

// Config holds the gateway server configuration.
type Config struct {
	// Name is the server name exposed in the MCP protocol.
	Name string

	// Version is the server version.
	Version string

	// Host is the bind address (default: "127.0.0.1").
	Host string

	// Port is the bind port. Port 0 binds a random free port.
	Port int

	// EndpointPath is the MCP endpoint path (default: "/mcp").
	EndpointPath string

	// SessionTTL is the idle session lifetime (default: 30 minutes).
	SessionTTL time.Duration

	// AuthMiddleware authenticates MCP requests and is required: every tool
	// call needs an identity for authorization and token exchange.
	AuthMiddleware func(http.Handler) http.Handler
}

// Server is the dynamic MCP gateway server.
type Server struct {
	config *Config

	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server

	listener   net.Listener
	listenerMu sync.RWMutex

	catalog   *catalog.Catalog
	sessions  *session.Manager
	registry  *registry.Registry
	exchanger gateway.TokenExchanger
	backend   gateway.BackendClient

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a gateway server. The session manager is owned by the caller;
// the server stops it on shutdown.
func New(
	cfg *Config,
	cat *catalog.Catalog,
	sessions *session.Manager,
	exchanger gateway.TokenExchanger,
	backend gateway.BackendClient,
) (*Server, error) {
	if cfg.AuthMiddleware == nil {
		return nil, fmt.Errorf("%w: auth middleware is required", gateway.ErrInvalidConfig)
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if cfg.Name == "" {
		cfg.Name = "mcpgate"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}

	// listChanged lets connected clients learn about proxy tools registered
	// after they initialized.
	mcpServer := mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)

	srv := &Server{
		config:    cfg,
		mcpServer: mcpServer,
		catalog:   cat,
		sessions:  sessions,
		exchanger: exchanger,
		backend:   backend,
		ready:     make(chan struct{}),
	}
	srv.registry = registry.New(mcpServer, registry.Deps{
		Sessions:  sessions,
		Exchanger: exchanger,
		Backend:   backend,
	})
	srv.registerBuiltinTools()

	return srv, nil
}

// Registry exposes the proxy-tool registry, mainly for inspection in tests.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Start runs the server until the context is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	streamableServer := mcpserver.NewStreamableHTTPServer(
		s.mcpServer,
		mcpserver.WithEndpointPath(s.config.EndpointPath),
		mcpserver.WithSessionIdManager(newSessionIDAdapter(s.sessions)),
		mcpserver.WithHTTPContextFunc(sessionContextFunc),
	)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	// Health endpoint stays unauthenticated.
	r.Get("/health", s.handleHealth)

	// Everything else is the MCP endpoint behind authentication.
	r.Handle("/*", s.config.AuthMiddleware(streamableServer))

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	logger.Infof("Starting MCP gateway at %s%s (%d catalog servers)",
		listener.Addr(), s.config.EndpointPath, s.catalog.Len())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-ctx.Done():
		logger.Info("Shutting down MCP gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		s.sessions.Stop()
		return err
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	defer s.sessions.Stop()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Ready returns a channel closed once the server is serving.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, useful with port 0.
func (s *Server) Addr() string {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleHealth answers liveness probes. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logger.Debugf("Failed to write health response: %v", err)
	}
}

// sessionContextFunc copies the MCP session header into the request context
// so tool handlers can resolve the calling session.
func sessionContextFunc(ctx context.Context, r *http.Request) context.Context {
	if sid := r.Header.Get(sessionIDHeader); sid != "" {
		return gateway.WithSessionID(ctx, sid)
	}
	return ctx
}
