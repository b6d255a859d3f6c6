// Command mcpbridge spawns stdio MCP servers and multiplexes them over
// network transports, or runs the inverse: dialing a remote network MCP
// server and exposing it as a local stdio process.
package main

import "github.com/mcpbridge/gateway/cmd/mcpbridge/cmd"

func main() {
	cmd.Execute()
}
