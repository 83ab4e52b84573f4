// Package app provides the entry point for the mcpgate command-line application.
package app

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/riposta/dynamic-mcp-poc/pkg/auth"
	"github.com/riposta/dynamic-mcp-poc/pkg/auth/tokenexchange"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/catalog"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/client"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/config"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/server"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/session"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mcpgate",
	DisableAutoGenTag: true,
	Short:             "Dynamic MCP gateway - enable downstream MCP servers on demand",
	Long: `mcpgate is a dynamic MCP (Model Context Protocol) gateway. Instead of exposing
every downstream server's tools up front, it starts with three built-in tools:

- search_servers: browse the catalog of available MCP servers
- enable_server: enable a server for the current session
- _reset: clear session enablement state

Enabling a server exchanges the caller's credentials for a server-scoped token
(RFC 8693 token exchange), discovers the server's tools, and makes them callable
in that session. Every proxied call re-runs the exchange, so access revocation
at the identity provider takes effect immediately.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the mcpgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to gateway configuration file")
	err = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	if err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP gateway",
		Long: `Start the MCP gateway and listen for MCP client connections.

The gateway reads the configuration file specified by --config, validates it,
and serves the built-in catalog tools. Downstream server tools appear as
sessions enable them.`,
		RunE: runServe,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display version information for mcpgate",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("mcpgate version: %s", getVersion())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the gateway configuration file for syntax and semantic errors.

This command checks:
- YAML syntax validity and unknown-field rejection
- Required fields presence
- Incoming auth and token exchange configuration
- Catalog entries`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger.Infof("Configuration is valid")
			logger.Infof("  Name: %s", cfg.Name)
			logger.Infof("  Listen: %s:%d%s", cfg.Host, cfg.Port, cfg.EndpointPath)
			logger.Infof("  Incoming Auth: %s", cfg.IncomingAuth.Type)
			logger.Infof("  Token Endpoint: %s", cfg.TokenExchange.TokenURL)
			logger.Infof("  Catalog Servers: %d", len(cfg.Servers))
			return nil
		},
	}
}

// getVersion returns the version string (set at build time via ldflags).
func getVersion() string {
	return version
}

// version is overridden at build time.
var version = "dev"

func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config flag")
	}

	logger.Infof("Loading configuration from: %s", configPath)

	cfg, err := config.NewYAMLLoader(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// runServe wires the gateway together and runs it until interrupted.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cat, err := catalog.New(cfg.CatalogServers())
	if err != nil {
		return fmt.Errorf("failed to build server catalog: %w", err)
	}
	logger.Infof("Catalog loaded with %d servers", cat.Len())

	authMiddleware, err := buildAuthMiddleware(cmd, cfg)
	if err != nil {
		return err
	}

	exchanger, err := tokenexchange.NewExchanger(tokenexchange.ExchangerConfig{
		TokenURL:     cfg.TokenExchange.TokenURL,
		ClientID:     cfg.TokenExchange.ClientID,
		ClientSecret: cfg.TokenExchange.ClientSecret,
		Scopes:       cfg.TokenExchange.Scopes,
	})
	if err != nil {
		return fmt.Errorf("failed to create token exchanger: %w", err)
	}

	sessions := session.NewManager(cfg.SessionTTL)
	backend := client.NewDownstream()

	srv, err := server.New(&server.Config{
		Name:           cfg.Name,
		Version:        getVersion(),
		Host:           cfg.Host,
		Port:           cfg.Port,
		EndpointPath:   cfg.EndpointPath,
		SessionTTL:     cfg.SessionTTL,
		AuthMiddleware: authMiddleware,
	}, cat, sessions, exchanger, backend)
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	// Start blocks until the context is cancelled
	return srv.Start(ctx)
}

func buildAuthMiddleware(cmd *cobra.Command, cfg *config.Config) (func(http.Handler) http.Handler, error) {
	switch cfg.IncomingAuth.Type {
	case config.AuthTypeOIDC:
		validator, err := auth.NewJWTValidator(cmd.Context(), auth.JWTValidatorConfig{
			Issuer:   cfg.IncomingAuth.OIDC.Issuer,
			Audience: cfg.IncomingAuth.OIDC.Audience,
			JWKSURL:  cfg.IncomingAuth.OIDC.JWKSURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT validator: %w", err)
		}
		return validator.Middleware, nil
	case config.AuthTypeLocal:
		logger.Warnf("Using local auth with fixed identity '%s'; never use this outside development",
			cfg.IncomingAuth.Local.Username)
		return auth.LocalUserMiddleware(cfg.IncomingAuth.Local.Username, cfg.IncomingAuth.Local.Roles), nil
	default:
		// Validate already rejected anything else.
		return nil, fmt.Errorf("unsupported incoming auth type: %s", cfg.IncomingAuth.Type)
	}
}
