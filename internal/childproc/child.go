// Package childproc supervises a stdio MCP server subprocess: spawning it
// through a shell, exposing a line-delimited write side and a framed read
// side, and reporting exit.
package childproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/mcpbridge/gateway/internal/metrics"
	"github.com/mcpbridge/gateway/internal/wire"
)

// ExitInfo describes how a Child's process terminated.
type ExitInfo struct {
	Code   int
	Signal string
}

// Child is a running stdio MCP server process, adapted from the 1:1
// subprocess supervision pattern used by outbound MCP clients in this
// proxy family, generalized to run an arbitrary shell command (spec
// requires the host shell to parse compound/quoted commands) and to
// surface exit as an event rather than only a blocking Wait call.
type Child struct {
	command string
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	killed  bool
	exited  bool
	onExit  func(ExitInfo)
	framer  *wire.Framer
}

// New creates a Child for the given shell command string. onMessage is
// called (from the stdout-reading goroutine) for every JSON-RPC line the
// child writes to its stdout. onExit is called exactly once when the
// process terminates, whether from natural exit, signal, or Kill. New
// counts no metrics; see NewWithMetrics.
func New(command string, logger *slog.Logger, onMessage func(*wire.Frame), onExit func(ExitInfo)) *Child {
	return NewWithMetrics(command, logger, onMessage, onExit, nil, "")
}

// NewWithMetrics is New plus Prometheus wiring for frame parse/drop counts.
// m is optional; when m is non-nil, every stdout line that parses or fails
// to parse is counted against bindingName.
func NewWithMetrics(command string, logger *slog.Logger, onMessage func(*wire.Frame), onExit func(ExitInfo), m *metrics.Registry, bindingName string) *Child {
	c := &Child{command: command, logger: logger, onExit: onExit}

	wrappedMessage := onMessage
	var onDrop func()
	if m != nil {
		wrappedMessage = func(f *wire.Frame) {
			m.FramesParsed.WithLabelValues(bindingName, f.Direction.String()).Inc()
			if onMessage != nil {
				onMessage(f)
			}
		}
		onDrop = func() {
			m.FramesDropped.WithLabelValues(bindingName).Inc()
		}
	}

	c.framer = wire.NewFramer(wire.ChildToClient, logger, wrappedMessage, onDrop)
	return c
}

// Start spawns the subprocess. The command is run through "sh -c" on POSIX
// and "cmd /c" on Windows, inheriting the parent's environment, so callers
// may pass compound pipelines exactly as they would type them at a shell.
func (c *Child) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return errors.New("child already started")
	}

	shell, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/c"
	}
	cmd := exec.CommandContext(ctx, shell, flag, c.command)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("child stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("child stdout pipe: %w", err)
	}
	cmd.Stderr = &stderrLogger{logger: c.logger}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("start child %q: %w", c.command, err)
	}

	c.cmd = cmd
	c.stdin = stdin

	go c.readLoop(stdout)
	go c.waitLoop()

	return nil
}

func (c *Child) readLoop(stdout io.ReadCloser) {
	_ = c.framer.Run(stdout)
}

func (c *Child) waitLoop() {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return
	}

	err := cmd.Wait()

	c.mu.Lock()
	killed := c.killed
	c.exited = true
	c.mu.Unlock()

	info := exitInfoFromError(err, killed)
	if c.onExit != nil {
		c.onExit(info)
	}
}

func exitInfoFromError(err error, killed bool) ExitInfo {
	if err == nil {
		return ExitInfo{Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if killed {
			return ExitInfo{Code: exitErr.ExitCode(), Signal: "killed"}
		}
		return ExitInfo{Code: exitErr.ExitCode()}
	}
	return ExitInfo{Code: 1}
}

// Send writes the already-encoded message raw to the child's stdin as
// exactly one line.
func (c *Child) Send(raw []byte) error {
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return errors.New("child not started")
	}
	return wire.WriteLine(stdin, raw)
}

// Kill terminates the subprocess. Safe to call multiple times.
func (c *Child) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.cmd.Process == nil || c.exited {
		return nil
	}
	c.killed = true
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill child: %w", err)
	}
	return nil
}

// stderrLogger forwards a child's stderr to the structured logger one line
// at a time instead of passing it through raw, per the error-log-sink
// contract (spec §4.2).
type stderrLogger struct {
	logger *slog.Logger
	buf    []byte
	mu     sync.Mutex
}

func (s *stderrLogger) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	for {
		i := indexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]
		if len(line) > 0 && s.logger != nil {
			s.logger.Warn("child stderr", "line", string(line))
		}
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
