// Package reverse implements the reverse adapters of spec.md §4.9: instead
// of bridging a local stdio MCP server onto the network, these adapters
// bridge a remote network MCP server onto local stdio, so the process
// invoking this bridge can talk to it exactly like any other stdio MCP
// server.
package reverse

import (
	"context"
	"io"
)

// Client is the outbound port for connecting to a remote MCP server,
// mirroring this proxy family's stdio/HTTP outbound client split so both
// reverse transports can share one stdio-hosting loop.
type Client interface {
	// Start establishes the remote connection. The returned WriteCloser
	// carries JSON-RPC lines toward the remote server; the ReadCloser
	// yields JSON-RPC lines received from it.
	Start(ctx context.Context) (stdin io.WriteCloser, stdout io.ReadCloser, err error)
	// Wait blocks until the remote connection terminates.
	Wait() error
	// Close terminates the connection and releases its resources.
	Close() error
}
