// Package ws implements the stdio⇄WebSocket transport adapter (spec.md
// §4.8): every inbound WebSocket message is forwarded to the bound child's
// stdin as one JSON-RPC line, and every line the child writes to stdout is
// broadcast to all connected clients on that binding.
//
// Unlike the hand-rolled RFC 6455 framing some proxies in this family use
// to inspect opaque traffic byte-for-byte, this adapter only ever needs to
// move whole JSON-RPC messages, so it is built on gorilla/websocket.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcpbridge/gateway/internal/metrics"
	"github.com/mcpbridge/gateway/internal/wire"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait / 2
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Adapter is the WebSocket transport adapter for one binding.
type Adapter struct {
	bindingName string
	send        func([]byte) error
	logger      *slog.Logger
	metrics     *metrics.Registry

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates an Adapter. send writes one JSON-RPC line to the bound
// child's stdin.
func New(bindingName string, send func([]byte) error, logger *slog.Logger, m *metrics.Registry) *Adapter {
	return &Adapter{
		bindingName: bindingName,
		send:        send,
		logger:      logger,
		metrics:     m,
		clients:     make(map[*client]struct{}),
	}
}

type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// ServeHTTP upgrades the connection and starts its read/write pumps.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("websocket upgrade failed", "binding", a.bindingName, "error", err)
		}
		return
	}

	c := &client{conn: conn, out: make(chan []byte, 32)}
	a.addClient(c)
	if a.metrics != nil {
		a.metrics.SessionsCreated.WithLabelValues(a.bindingName, "websocket").Inc()
		a.metrics.SessionsActive.WithLabelValues(a.bindingName, "websocket").Inc()
	}

	go a.writePump(c)
	a.readPump(c)
}

func (a *Adapter) addClient(c *client) {
	a.mu.Lock()
	a.clients[c] = struct{}{}
	a.mu.Unlock()
}

// removeClient deletes c from the client set and closes its send channel.
// Both happen under a.mu, the same lock OnChildFrame's broadcast loop holds
// while it sends, so a client can never be closed out from under an
// in-flight broadcast send.
func (a *Adapter) removeClient(c *client, reason string) {
	a.mu.Lock()
	_, ok := a.clients[c]
	if ok {
		delete(a.clients, c)
		close(c.out)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	if a.metrics != nil {
		a.metrics.SessionsExpired.WithLabelValues(a.bindingName, "websocket", reason).Inc()
		a.metrics.SessionsActive.WithLabelValues(a.bindingName, "websocket").Dec()
	}
}

func (a *Adapter) readPump(c *client) {
	defer func() {
		a.removeClient(c, "disconnect")
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !json.Valid(raw) {
			if a.logger != nil {
				a.logger.Warn("dropping non-JSON websocket message", "binding", a.bindingName)
			}
			if a.metrics != nil {
				a.metrics.FramesDropped.WithLabelValues(a.bindingName).Inc()
			}
			continue
		}
		if err := a.send(raw); err != nil {
			if a.logger != nil {
				a.logger.Error("failed to write to child stdin", "binding", a.bindingName, "error", err)
			}
			return
		}
	}
}

func (a *Adapter) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// OnChildFrame is invoked by the Line Framer for every message the child
// writes to stdout. It fans the frame out to every connected client.
//
// The send and any resulting removal both happen under a.mu so this can
// never race removeClient's close of a client's out channel: a client is
// either still registered, in which case the send is safe, or already gone,
// in which case it is skipped entirely.
func (a *Adapter) OnChildFrame(f *wire.Frame) {
	a.mu.Lock()
	var stale []*client
	for c := range a.clients {
		select {
		case c.out <- f.Raw:
		default:
			delete(a.clients, c)
			close(c.out)
			stale = append(stale, c)
		}
	}
	a.mu.Unlock()

	if a.metrics != nil {
		for range stale {
			a.metrics.SessionsExpired.WithLabelValues(a.bindingName, "websocket", "slow-consumer").Inc()
			a.metrics.SessionsActive.WithLabelValues(a.bindingName, "websocket").Dec()
		}
	}
}
