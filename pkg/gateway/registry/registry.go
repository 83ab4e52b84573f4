// Package registry implements the global proxy-tool registrar. Each enabled
// downstream tool becomes one proxy tool on the gateway's MCP server,
// registered at most once process-wide; per-session gating happens inside
// the proxy handler, not at registration time.
package registry

import (
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/catalog"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

// ToolRegistrar is the part of the MCP server the registry needs: the
// ability to install a tool with its handler. *server.MCPServer satisfies it.
type ToolRegistrar interface {
	AddTool(tool mcp.Tool, handler mcpserver.ToolHandlerFunc)
}

// Deps are the collaborators every proxy handler closes over.
type Deps struct {
	// Sessions gates proxy calls on per-session enablement.
	Sessions gateway.SessionStore

	// Exchanger performs the per-call token exchange.
	Exchanger gateway.TokenExchanger

	// Backend forwards calls to downstream servers.
	Backend gateway.BackendClient
}

// Binding ties a registered proxy tool to its owning server and the
// downstream tool it forwards to.
type Binding struct {
	// Server is the owning catalog descriptor, frozen at first registration.
	Server catalog.Server

	// Tool is the downstream tool descriptor, schema verbatim.
	Tool gateway.Tool

	// required are the argument names the tool's schema marks required.
	required []string
}

// Registry is the global tool-name → binding map. Registration is an atomic
// check-and-insert: the first registration of a name wins and installs the
// proxy tool; later attempts are no-ops. There is no unregistration.
type Registry struct {
	mu        sync.Mutex
	bindings  map[string]*Binding
	registrar ToolRegistrar
	deps      Deps
}

// New creates a proxy-tool registry that installs tools on the registrar.
func New(registrar ToolRegistrar, deps Deps) *Registry {
	return &Registry{
		bindings:  make(map[string]*Binding),
		registrar: registrar,
		deps:      deps,
	}
}

// Register installs a proxy tool for the downstream tool, owned by the given
// server. Returns true if this call won the registration, false if the name
// was already taken (by any server, including this one).
func (r *Registry) Register(srv *catalog.Server, tool gateway.Tool) bool {
	binding := &Binding{
		Server:   *srv,
		Tool:     tool,
		required: requiredParams(tool.InputSchema),
	}

	r.mu.Lock()
	if existing, taken := r.bindings[tool.Name]; taken {
		r.mu.Unlock()
		if existing.Server.Name != srv.Name {
			logger.Warnw("Tool name collision, keeping earlier registration",
				"tool", tool.Name, "owner", existing.Server.Name, "loser", srv.Name)
		}
		return false
	}
	r.bindings[tool.Name] = binding
	r.mu.Unlock()

	// AddTool after the map insert: the handler resolves its binding through
	// the map, so a racing call observes consistent state.
	r.registrar.AddTool(
		mcp.NewToolWithRawSchema(tool.Name, tool.Description, tool.InputSchema),
		r.proxyHandler(binding),
	)
	logger.Infow("Registered proxy tool", "tool", tool.Name, "server", srv.Name)
	return true
}

// Lookup returns the binding for a registered tool name.
func (r *Registry) Lookup(name string) (*Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[name]
	return b, ok
}

// Names returns the registered proxy tool names, in no particular order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	return names
}
