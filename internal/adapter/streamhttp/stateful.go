package streamhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpbridge/gateway/internal/childproc"
	"github.com/mcpbridge/gateway/internal/metrics"
	"github.com/mcpbridge/gateway/internal/sessioncounter"
	"github.com/mcpbridge/gateway/internal/wire"
)

// ChildFactory spawns a fresh child for a new session, wiring its stdout
// frames to onMessage and its exit to onExit.
type ChildFactory func(onMessage func(*wire.Frame), onExit func(childproc.ExitInfo)) (*childproc.Child, error)

// StatefulAdapter implements spec.md §4.6: one path handling POST/GET/
// DELETE, sessions keyed by the Mcp-Session-Id header, idle-timeout
// cleanup via sessioncounter.Counter.
type StatefulAdapter struct {
	bindingName string
	newChild    ChildFactory
	logger      *slog.Logger
	metrics     *metrics.Registry
	reqTimeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*transport
	counter  *sessioncounter.Counter
}

// NewStatefulAdapter creates a StatefulAdapter. If timeout > 0, idle
// sessions (ref-count 0 for timeout) are removed automatically.
func NewStatefulAdapter(bindingName string, newChild ChildFactory, timeout time.Duration, logger *slog.Logger, m *metrics.Registry) *StatefulAdapter {
	a := &StatefulAdapter{
		bindingName: bindingName,
		newChild:    newChild,
		logger:      logger,
		metrics:     m,
		reqTimeout:  30 * time.Second,
		sessions:    make(map[string]*transport),
	}
	a.counter = sessioncounter.New(timeout, a.onSessionExpire, logger)
	return a
}

// ServeHTTP dispatches POST, GET, and DELETE per spec.md §4.6.
func (a *StatefulAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handlePost(w, r)
	case http.MethodGet:
		a.handleGet(w, r)
	case http.MethodDelete:
		a.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *StatefulAdapter) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sid := r.Header.Get(SessionIDHeader)

	if sid != "" {
		a.mu.Lock()
		tr, ok := a.sessions[sid]
		a.mu.Unlock()
		if !ok {
			a.writeBadSession(w)
			return
		}
		a.counter.Inc(sid, "post")
		defer a.decOnce(sid)
		a.forward(w, r, tr, sid, body)
		return
	}

	if !looksLikeInitialize(body) {
		a.writeBadSession(w)
		return
	}

	sid = uuid.NewString()
	tr := newTransport(nil, a.logger)

	child, err := a.newChild(tr.onChildFrame, func(info childproc.ExitInfo) {
		a.onChildExit(sid, info)
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(wire.InternalServerError())
		return
	}
	tr.child = child

	a.mu.Lock()
	a.sessions[sid] = tr
	a.mu.Unlock()
	a.counter.Inc(sid, "initialize")
	defer a.decOnce(sid)

	if a.metrics != nil {
		a.metrics.ChildrenSpawned.Inc()
		a.metrics.SessionsCreated.WithLabelValues(a.bindingName, "streamable-http-stateful").Inc()
		a.metrics.SessionsActive.WithLabelValues(a.bindingName, "streamable-http-stateful").Inc()
	}

	a.forward(w, r, tr, sid, body)
}

// decOnce decrements a session's ref-count at the end of one request. Each
// handler defers exactly one call after its Inc, which is what keeps the
// decrement to once per request; the function itself has no guard against
// being called twice.
func (a *StatefulAdapter) decOnce(sid string) {
	a.counter.Dec(sid, "response-end")
}

func (a *StatefulAdapter) forward(w http.ResponseWriter, r *http.Request, tr *transport, sid string, body []byte) {
	id := rawID(body)
	waiter := tr.awaitResponse(id)

	if err := tr.child.Send(body); err != nil {
		tr.cancelWait(id)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(wire.InternalServerError())
		return
	}

	ctx := r.Context()
	select {
	case frame := <-waiter:
		w.Header().Set(SessionIDHeader, sid)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(frame.Raw)
	case <-ctx.Done():
		tr.cancelWait(id)
	case <-time.After(a.reqTimeout):
		tr.cancelWait(id)
		w.WriteHeader(http.StatusGatewayTimeout)
	}
}

func (a *StatefulAdapter) handleGet(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(SessionIDHeader)
	a.mu.Lock()
	tr, ok := a.sessions[sid]
	a.mu.Unlock()
	if sid == "" || !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid or missing session ID"))
		return
	}

	flusher, ok2 := w.(http.Flusher)
	if !ok2 {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	a.counter.Inc(sid, "get")
	defer a.decOnce(sid)

	stream := make(chan *wire.Frame, 16)
	tr.subscribe(stream)
	defer tr.unsubscribe(stream)

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case f := <-stream:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", f.Raw)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (a *StatefulAdapter) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(SessionIDHeader)
	a.mu.Lock()
	tr, ok := a.sessions[sid]
	a.mu.Unlock()
	if sid == "" || !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid or missing session ID"))
		return
	}

	a.counter.Inc(sid, "delete")
	a.terminate(sid, tr, "delete")
	w.WriteHeader(http.StatusOK)
}

// onSessionExpire is the sessioncounter.Counter onExpire callback: idle
// timeout closes the transport and removes the table entry (spec.md §4.6
// "Session expiration").
func (a *StatefulAdapter) onSessionExpire(sid string) {
	a.mu.Lock()
	tr, ok := a.sessions[sid]
	a.mu.Unlock()
	if !ok {
		return
	}
	a.terminate(sid, tr, "idle-timeout")
}

// onChildExit implements spec.md §4.2's stateful-mode policy: the child
// dying tears down its transport and deletes the session, keyed off the
// session id captured at creation time rather than a possibly-falsy field
// read back off the transport (spec.md §9 notes this as a source-bug fix).
func (a *StatefulAdapter) onChildExit(sid string, info childproc.ExitInfo) {
	if a.logger != nil {
		a.logger.Warn("stateful child exited", "binding", a.bindingName, "session", sid, "code", info.Code, "signal", info.Signal)
	}
	if a.metrics != nil {
		a.metrics.ChildrenExited.WithLabelValues(a.bindingName).Inc()
	}
	a.mu.Lock()
	tr, ok := a.sessions[sid]
	a.mu.Unlock()
	if !ok {
		return
	}
	if tr.markClosed() {
		a.removeSession(sid, "child-exit")
	}
}

func (a *StatefulAdapter) terminate(sid string, tr *transport, reason string) {
	if tr.markClosed() {
		_ = tr.child.Kill()
	}
	a.removeSession(sid, reason)
}

func (a *StatefulAdapter) removeSession(sid, reason string) {
	a.mu.Lock()
	_, ok := a.sessions[sid]
	if ok {
		delete(a.sessions, sid)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.counter.Clear(sid, false, reason)
	if a.metrics != nil {
		a.metrics.SessionsExpired.WithLabelValues(a.bindingName, "streamable-http-stateful", reason).Inc()
		a.metrics.SessionsActive.WithLabelValues(a.bindingName, "streamable-http-stateful").Dec()
	}
}

func (a *StatefulAdapter) writeBadSession(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(wire.NoValidSession())
}

func looksLikeInitialize(body []byte) bool {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Method == "initialize"
}

func rawID(body []byte) string {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return string(probe.ID)
}
