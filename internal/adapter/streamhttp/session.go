// Package streamhttp implements the stateful and stateless
// stdio⇄Streamable-HTTP adapters (spec.md §4.6, §4.7), including the
// stateless adapter's auto-initialize interposer.
package streamhttp

import (
	"log/slog"
	"sync"

	"github.com/mcpbridge/gateway/internal/childproc"
	"github.com/mcpbridge/gateway/internal/wire"
)

// SessionIDHeader is the header carrying the Streamable-HTTP session id in
// both directions, per spec.md §3/§4.6.
const SessionIDHeader = "Mcp-Session-Id"

// transport correlates a session's child with pending HTTP requests and any
// open GET stream subscribers, replacing the event-driven onmessage/
// onclose/onerror callback triple from the reference implementation with a
// single struct guarded by one mutex (spec.md §9 "Event-driven callbacks
// → channels/tasks").
type transport struct {
	mu      sync.Mutex
	child   *childproc.Child
	pending map[string]chan *wire.Frame // keyed by raw JSON id
	stream  chan *wire.Frame            // fanned out to an open GET subscriber, nil if none
	closed  bool
	logger  *slog.Logger
}

func newTransport(child *childproc.Child, logger *slog.Logger) *transport {
	return &transport{
		child:   child,
		pending: make(map[string]chan *wire.Frame),
		logger:  logger,
	}
}

// awaitResponse registers a waiter for the response to a request with the
// given raw id and returns a channel that receives exactly one Frame.
func (t *transport) awaitResponse(id string) chan *wire.Frame {
	ch := make(chan *wire.Frame, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

func (t *transport) cancelWait(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// onChildFrame routes a frame from the child to whichever POST is awaiting
// its id, or to the open GET stream subscriber if no POST is waiting.
func (t *transport) onChildFrame(f *wire.Frame) {
	id := string(f.RawID())

	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	stream := t.stream
	t.mu.Unlock()

	if ok {
		ch <- f
		return
	}
	if stream != nil {
		select {
		case stream <- f:
		default:
		}
	}
}

// subscribe registers the given channel as the GET stream subscriber,
// replacing any previous one.
func (t *transport) subscribe(ch chan *wire.Frame) {
	t.mu.Lock()
	t.stream = ch
	t.mu.Unlock()
}

func (t *transport) unsubscribe(ch chan *wire.Frame) {
	t.mu.Lock()
	if t.stream == ch {
		t.stream = nil
	}
	t.mu.Unlock()
}

// failAll unblocks every pending waiter with a nil frame, used when the
// child exits before answering a request it was sent.
func (t *transport) failAll() {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]chan *wire.Frame)
	t.mu.Unlock()
	for _, ch := range pending {
		ch <- nil
	}
}

func (t *transport) markClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	return true
}
