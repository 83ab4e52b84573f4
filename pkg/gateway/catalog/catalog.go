// Package catalog holds the static catalog of downstream MCP servers the
// gateway can enable. The catalog is loaded once at startup and immutable
// afterwards.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
)

// TransportStreamableHTTP is the only downstream transport currently
// supported.
const TransportStreamableHTTP = "streamable-http"

// Server describes one downstream MCP server.
type Server struct {
	// Name is the unique catalog key, used in enable_server calls.
	Name string

	// Description is shown to clients in search_servers results.
	Description string

	// URL is the server's MCP endpoint.
	URL string

	// Transport is the MCP transport type. Defaults to streamable-http.
	Transport string

	// Audience is the token-exchange audience for this server.
	Audience string

	// RequiredRole gates access to this server. Empty means no role check.
	RequiredRole string
}

// Target returns the routing target for this server.
func (s *Server) Target() *gateway.ServerTarget {
	return &gateway.ServerTarget{
		Name:          s.Name,
		BaseURL:       s.URL,
		TransportType: s.Transport,
	}
}

// Catalog is an immutable, name-indexed set of server descriptors.
type Catalog struct {
	byName map[string]Server
	names  []string
}

// New builds a catalog from the given descriptors, validating each entry.
func New(servers []Server) (*Catalog, error) {
	byName := make(map[string]Server, len(servers))
	names := make([]string, 0, len(servers))

	for i, srv := range servers {
		if srv.Name == "" {
			return nil, fmt.Errorf("%w: server %d has no name", gateway.ErrInvalidConfig, i)
		}
		if srv.URL == "" {
			return nil, fmt.Errorf("%w: server %q has no URL", gateway.ErrInvalidConfig, srv.Name)
		}
		if _, exists := byName[srv.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate server name %q", gateway.ErrInvalidConfig, srv.Name)
		}
		if srv.Transport == "" {
			srv.Transport = TransportStreamableHTTP
		}
		if srv.Transport != TransportStreamableHTTP {
			return nil, fmt.Errorf("%w: server %q has unsupported transport %q",
				gateway.ErrInvalidConfig, srv.Name, srv.Transport)
		}
		byName[srv.Name] = srv
		names = append(names, srv.Name)
	}
	sort.Strings(names)

	return &Catalog{byName: byName, names: names}, nil
}

// Lookup returns the descriptor for the named server.
func (c *Catalog) Lookup(name string) (*Server, error) {
	srv, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("server %q: %w", name, gateway.ErrNotFound)
	}
	// Return a copy so callers cannot mutate catalog state.
	return &srv, nil
}

// List returns all descriptors in stable name order.
func (c *Catalog) List() []*Server {
	out := make([]*Server, 0, len(c.names))
	for _, name := range c.names {
		srv := c.byName[name]
		out = append(out, &srv)
	}
	return out
}

// Search returns descriptors whose name or description contains the query,
// case-insensitively. An empty query returns the full catalog.
func (c *Catalog) Search(query string) []*Server {
	if query == "" {
		return c.List()
	}
	q := strings.ToLower(query)
	var out []*Server
	for _, name := range c.names {
		srv := c.byName[name]
		if strings.Contains(strings.ToLower(srv.Name), q) ||
			strings.Contains(strings.ToLower(srv.Description), q) {
			out = append(out, &srv)
		}
	}
	return out
}

// Len returns the number of servers in the catalog.
func (c *Catalog) Len() int {
	return len(c.names)
}
