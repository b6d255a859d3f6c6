// Package cmd provides the CLI commands for the MCP bridge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcpbridge",
	Short: "mcpbridge - MCP stdio/network protocol bridge",
	Long: `mcpbridge spawns one or more MCP servers as subprocesses and exposes
them over SSE, Streamable-HTTP, or WebSocket, or runs the inverse: dials a
remote network MCP server and exposes it as a local stdio process.

Forward modes:
  mcpbridge bridge --stdio "npx @modelcontextprotocol/server-filesystem /tmp"
  mcpbridge bridge --multiServerConfig servers.json

Reverse modes:
  mcpbridge bridge --sse https://example.com/sse
  mcpbridge bridge --streamableHttp https://example.com/mcp`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
