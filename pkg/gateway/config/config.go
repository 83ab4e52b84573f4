// Package config provides configuration types, loading, and validation for
// the MCP gateway.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/catalog"
)

// Incoming auth modes.
const (
	// AuthTypeOIDC validates incoming bearer tokens against an OIDC provider.
	AuthTypeOIDC = "oidc"

	// AuthTypeLocal stamps every request with a fixed development identity.
	// Never use this outside local development.
	AuthTypeLocal = "local"
)

// Config is the top-level gateway configuration.
type Config struct {
	// Name identifies this gateway instance in the MCP protocol.
	Name string `yaml:"name"`

	// Host is the bind address.
	Host string `yaml:"host"`

	// Port is the bind port.
	Port int `yaml:"port"`

	// EndpointPath is the MCP endpoint path.
	EndpointPath string `yaml:"endpoint_path"`

	// SessionTTL is how long an idle session keeps its enablement state.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// IncomingAuth configures how incoming requests are authenticated.
	IncomingAuth IncomingAuthConfig `yaml:"incoming_auth"`

	// TokenExchange configures the RFC 8693 exchange against the IdP.
	TokenExchange TokenExchangeConfig `yaml:"token_exchange"`

	// Servers is the catalog of downstream MCP servers.
	Servers []ServerConfig `yaml:"servers"`
}

// IncomingAuthConfig selects and configures the incoming auth mode.
type IncomingAuthConfig struct {
	// Type is the auth mode: "oidc" or "local".
	Type string `yaml:"type"`

	// OIDC configures bearer token validation. Required when Type is "oidc".
	OIDC *OIDCConfig `yaml:"oidc,omitempty"`

	// Local configures the fixed development identity. Required when Type is "local".
	Local *LocalAuthConfig `yaml:"local,omitempty"`
}

// OIDCConfig configures JWT validation against an OIDC provider.
type OIDCConfig struct {
	// Issuer is the expected token issuer.
	Issuer string `yaml:"issuer"`

	// Audience is the expected token audience. Optional.
	Audience string `yaml:"audience,omitempty"`

	// JWKSURL is the JWKS endpoint for signature verification.
	JWKSURL string `yaml:"jwks_url"`
}

// LocalAuthConfig configures the development identity.
type LocalAuthConfig struct {
	// Username is the fixed username stamped on every request.
	Username string `yaml:"username"`

	// Roles are the realm roles granted to the development identity.
	Roles []string `yaml:"roles,omitempty"`
}

// TokenExchangeConfig configures the RFC 8693 token exchange client.
type TokenExchangeConfig struct {
	// TokenURL is the IdP token endpoint.
	TokenURL string `yaml:"token_url"`

	// ClientID is the gateway's OAuth client identifier.
	ClientID string `yaml:"client_id"`

	// ClientSecret is the gateway's OAuth client secret. The
	// MCPGATE_CLIENT_SECRET environment variable overrides this value so
	// secrets can stay out of config files.
	ClientSecret string `yaml:"client_secret,omitempty"`

	// Scopes are optional scopes requested on exchange.
	Scopes []string `yaml:"scopes,omitempty"`
}

// ServerConfig describes one downstream MCP server in the catalog.
type ServerConfig struct {
	// Name is the catalog name clients enable the server by.
	Name string `yaml:"name"`

	// Description is shown in search_servers results.
	Description string `yaml:"description,omitempty"`

	// URL is the server's streamable HTTP endpoint.
	URL string `yaml:"url"`

	// Transport is the server transport. Only "streamable-http" is supported
	// and it is the default.
	Transport string `yaml:"transport,omitempty"`

	// Audience is the token exchange audience for this server.
	Audience string `yaml:"audience"`

	// RequiredRole gates enablement to users holding this realm role.
	// Empty means any authenticated user.
	RequiredRole string `yaml:"required_role,omitempty"`
}

// CatalogServers converts the configured servers into catalog entries.
func (c *Config) CatalogServers() []catalog.Server {
	servers := make([]catalog.Server, 0, len(c.Servers))
	for _, s := range c.Servers {
		servers = append(servers, catalog.Server{
			Name:         s.Name,
			Description:  s.Description,
			URL:          s.URL,
			Transport:    s.Transport,
			Audience:     s.Audience,
			RequiredRole: s.RequiredRole,
		})
	}
	return servers
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "mcpgate"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.EndpointPath == "" {
		c.EndpointPath = "/mcp"
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * time.Minute
	}
}

// Validate checks the configuration for semantic errors. It returns a single
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch c.IncomingAuth.Type {
	case AuthTypeOIDC:
		if c.IncomingAuth.OIDC == nil {
			errs = append(errs, "incoming_auth.oidc is required when type is 'oidc'")
		} else {
			if c.IncomingAuth.OIDC.Issuer == "" {
				errs = append(errs, "incoming_auth.oidc.issuer is required")
			}
			if c.IncomingAuth.OIDC.JWKSURL == "" {
				errs = append(errs, "incoming_auth.oidc.jwks_url is required")
			}
		}
	case AuthTypeLocal:
		if c.IncomingAuth.Local == nil || c.IncomingAuth.Local.Username == "" {
			errs = append(errs, "incoming_auth.local.username is required when type is 'local'")
		}
	case "":
		errs = append(errs, "incoming_auth.type is required ('oidc' or 'local')")
	default:
		errs = append(errs, fmt.Sprintf("incoming_auth.type must be 'oidc' or 'local' (got '%s')", c.IncomingAuth.Type))
	}

	if c.TokenExchange.TokenURL == "" {
		errs = append(errs, "token_exchange.token_url is required")
	}
	if c.TokenExchange.ClientID == "" {
		errs = append(errs, "token_exchange.client_id is required")
	}
	if c.TokenExchange.ClientSecret == "" {
		errs = append(errs, "token_exchange.client_secret is required (set it in the config file or via MCPGATE_CLIENT_SECRET)")
	}

	if len(c.Servers) == 0 {
		errs = append(errs, "servers must list at least one downstream server")
	}
	for i, s := range c.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("servers[%d].name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Sprintf("servers[%d].url is required", i))
		}
		if s.Audience == "" {
			errs = append(errs, fmt.Sprintf("servers[%d].audience is required", i))
		}
		if s.Transport != "" && s.Transport != catalog.TransportStreamableHTTP {
			errs = append(errs, fmt.Sprintf("servers[%d].transport must be '%s' (got '%s')",
				i, catalog.TransportStreamableHTTP, s.Transport))
		}
	}

	if c.SessionTTL < 0 {
		errs = append(errs, "session_ttl cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
