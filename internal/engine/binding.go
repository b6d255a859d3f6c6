// Package engine wires bindings, child processes, and transport adapters
// together into one servable process, the bridge orchestrator role spec.md
// §1 assigns to the top-level proxy entry point.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mcpbridge/gateway/internal/adapter/sse"
	"github.com/mcpbridge/gateway/internal/adapter/streamhttp"
	"github.com/mcpbridge/gateway/internal/adapter/ws"
	"github.com/mcpbridge/gateway/internal/childproc"
	"github.com/mcpbridge/gateway/internal/config"
	"github.com/mcpbridge/gateway/internal/metrics"
	"github.com/mcpbridge/gateway/internal/router"
	"github.com/mcpbridge/gateway/internal/wire"
)

// registration is one (path, handler) pair a binding wants mounted on the
// engine's top-level mux.
type registration struct {
	Path    string
	Handler http.Handler
}

// binding owns the running state for one configured ServerBinding: its
// adapter(s), and for the SSE/WebSocket transports, the single long-lived
// child process all of that binding's network sessions share.
type binding struct {
	cfg       config.Binding
	child     *childproc.Child // set only for SSE/WebSocket (Streamable-HTTP spawns per-session/per-request)
	unhealthy atomic.Bool      // set once a supervised child has exited; Streamable-HTTP bindings never set this
}

// Healthy reports whether this binding's supervised child, if any, is still
// running. Streamable-HTTP bindings have no shared child and are always
// healthy.
func (b *binding) Healthy() bool {
	return !b.unhealthy.Load()
}

// onChildDeath is invoked when a binding's shared child (SSE/WebSocket
// modes) exits unexpectedly. Per spec.md §4.2, the two transports diverge
// here: an SSE binding has exactly one upstream child with no per-session
// recovery path, so its death is fatal to the whole process. A WebSocket
// binding's peers may remain connected to other bindings, so its child's
// death is logged and marks the binding unhealthy without killing the
// process.
type onChildDeath func(bindingName string, info childproc.ExitInfo)

func newBinding(
	ctx context.Context,
	cfg config.Binding,
	o *config.Options,
	logger *slog.Logger,
	m *metrics.Registry,
	death onChildDeath,
) (*binding, []registration, error) {
	bindLogger := logger
	if bindLogger != nil && cfg.Name != "" {
		bindLogger = logger.With("binding", cfg.Name)
	}

	switch o.OutputTransport {
	case config.OutputSSE:
		return newSSEBinding(ctx, cfg, o, bindLogger, m, death)
	case config.OutputWebSocket:
		return newWSBinding(ctx, cfg, o, bindLogger, m, death)
	case config.OutputStreamableHTTP:
		return newStreamableHTTPBinding(ctx, cfg, o, bindLogger, m)
	default:
		return nil, nil, fmt.Errorf("binding %q: unsupported output transport %q", cfg.Name, o.OutputTransport)
	}
}

func newSSEBinding(ctx context.Context, cfg config.Binding, o *config.Options, logger *slog.Logger, m *metrics.Registry, death onChildDeath) (*binding, []registration, error) {
	b := &binding{cfg: cfg}

	adapter := sse.New(cfg.Name, o.BaseURL, o.SSEPath, o.MessagePath, func(raw []byte) error {
		return b.child.Send(raw)
	}, logger, m)

	b.child = childproc.NewWithMetrics(cfg.Command, logger, adapter.OnChildFrame, func(info childproc.ExitInfo) {
		b.unhealthy.Store(true)
		if death != nil {
			death(cfg.Name, info)
		}
	}, m, cfg.Name)
	if err := b.child.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("binding %q: start child: %w", cfg.Name, err)
	}
	if m != nil {
		m.ChildrenSpawned.Inc()
	}

	ssePath := router.FullPath(cfg.Prefix, o.SSEPath)
	messagePath := router.FullPath(cfg.Prefix, o.MessagePath)
	return b, []registration{
		{Path: ssePath, Handler: http.HandlerFunc(adapter.HandleSSE)},
		{Path: messagePath, Handler: http.HandlerFunc(adapter.HandleMessage)},
	}, nil
}

func newWSBinding(ctx context.Context, cfg config.Binding, o *config.Options, logger *slog.Logger, m *metrics.Registry, death onChildDeath) (*binding, []registration, error) {
	b := &binding{cfg: cfg}

	adapter := ws.New(cfg.Name, func(raw []byte) error {
		return b.child.Send(raw)
	}, logger, m)

	b.child = childproc.NewWithMetrics(cfg.Command, logger, adapter.OnChildFrame, func(info childproc.ExitInfo) {
		b.unhealthy.Store(true)
		if logger != nil {
			logger.Error("websocket binding child exited, marking unhealthy", "binding", cfg.Name, "code", info.Code, "signal", info.Signal)
		}
	}, m, cfg.Name)
	if err := b.child.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("binding %q: start child: %w", cfg.Name, err)
	}
	if m != nil {
		m.ChildrenSpawned.Inc()
	}

	wsPath := router.Normalize(cfg.Prefix)
	if wsPath == "" {
		wsPath = "/"
	}
	return b, []registration{{Path: wsPath, Handler: adapter}}, nil
}

func newStreamableHTTPBinding(ctx context.Context, cfg config.Binding, o *config.Options, logger *slog.Logger, m *metrics.Registry) (*binding, []registration, error) {
	b := &binding{cfg: cfg}

	factory := func(onMessage func(*wire.Frame), onExit func(childproc.ExitInfo)) (*childproc.Child, error) {
		c := childproc.NewWithMetrics(cfg.Command, logger, onMessage, onExit, m, cfg.Name)
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		if m != nil {
			m.ChildrenSpawned.Inc()
		}
		return c, nil
	}

	path := router.FullPath(cfg.Prefix, o.StreamableHTTPPath)

	if o.Stateful {
		timeout := time.Duration(o.SessionTimeoutMS) * time.Millisecond
		adapter := streamhttp.NewStatefulAdapter(cfg.Name, streamhttp.ChildFactory(factory), timeout, logger, m)
		return b, []registration{{Path: path, Handler: adapter}}, nil
	}

	adapter := streamhttp.NewStatelessAdapter(cfg.Name, streamhttp.ChildFactory(factory), o.ProtocolVersion, "1.0.0", logger, m)
	return b, []registration{{Path: path, Handler: adapter}}, nil
}
