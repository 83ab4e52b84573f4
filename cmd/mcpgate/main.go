// Package main is the entry point for the MCP gateway (mcpgate).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/riposta/dynamic-mcp-poc/cmd/mcpgate/app"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	// Execute the root command with context
	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
