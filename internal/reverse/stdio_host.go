package reverse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
)

// Host runs a Client against the process's own stdin/stdout, so whatever
// spawned this process can speak to the remote MCP server as if it were a
// local stdio server (spec.md §4.9).
type Host struct {
	client Client
	logger *slog.Logger
}

// NewHost creates a Host for client.
func NewHost(client Client, logger *slog.Logger) *Host {
	return &Host{client: client, logger: logger}
}

// Run starts the client, pumps stdin into it and its output to stdout, and
// blocks until either side closes or ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	stdin, stdout, err := h.client.Start(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.client.Close() }()

	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if _, err := stdin.Write(append(append([]byte(nil), line...), '\n')); err != nil {
				if h.logger != nil {
					h.logger.Error("failed to forward stdin to remote client", "error", err)
				}
				return
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		if _, err := io.Copy(os.Stdout, stdout); err != nil && h.logger != nil {
			h.logger.Error("remote client output copy failed", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	return h.client.Wait()
}
