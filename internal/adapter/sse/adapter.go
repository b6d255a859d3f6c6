// Package sse implements the stdio⇄SSE transport adapter (spec.md §4.5):
// a GET establishes a long-lived event stream and is given a session id;
// a POST carrying that session id as a query parameter is relayed to the
// child's stdin.
package sse

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/mcpbridge/gateway/internal/metrics"
	"github.com/mcpbridge/gateway/internal/wire"
)

// session is one active SSE subscriber (spec.md §3 "Session (SSE)").
type session struct {
	id   string
	w    http.ResponseWriter
	flus http.Flusher
	done chan struct{}
}

// Adapter is the SSE transport adapter for one binding.
type Adapter struct {
	bindingName string
	baseURL     string
	ssePath     string
	messagePath string
	send        func([]byte) error
	logger      *slog.Logger
	metrics     *metrics.Registry

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an Adapter. send writes one JSON-RPC line to the bound
// child's stdin.
func New(bindingName, baseURL, ssePath, messagePath string, send func([]byte) error, logger *slog.Logger, m *metrics.Registry) *Adapter {
	return &Adapter{
		bindingName: bindingName,
		baseURL:     baseURL,
		ssePath:     ssePath,
		messagePath: messagePath,
		send:        send,
		logger:      logger,
		metrics:     m,
		sessions:    make(map[string]*session),
	}
}

// MessagePath returns the binding-relative POST path, used by the engine's
// body-parsing middleware rule ("JSON body parsing applies to all
// endpoints except the POST message endpoints").
func (a *Adapter) MessagePath() string { return a.messagePath }

// HandleSSE handles GET <prefix>/ssePath: opens a long-lived event stream,
// assigns a session id, and keeps the response open until the client
// disconnects.
func (a *Adapter) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, err := newSessionID()
	if err != nil {
		http.Error(w, "failed to allocate session", http.StatusInternalServerError)
		return
	}

	sess := &session{id: id, w: w, flus: flusher, done: make(chan struct{})}
	a.mu.Lock()
	a.sessions[id] = sess
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.SessionsCreated.WithLabelValues(a.bindingName, "sse").Inc()
		a.metrics.SessionsActive.WithLabelValues(a.bindingName, "sse").Inc()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := a.baseURL + a.messagePath + "?sessionId=" + url.QueryEscape(id)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	select {
	case <-r.Context().Done():
	case <-sess.done:
	}
	a.removeSession(id, "disconnect")
}

// HandleMessage handles POST <prefix>/messagePath?sessionId=<id>.
func (a *Adapter) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	a.mu.Lock()
	sess, ok := a.sessions[id]
	a.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no active session for sessionId"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	if err := a.send(body); err != nil {
		if a.logger != nil {
			a.logger.Error("failed to write to child stdin", "binding", a.bindingName, "session", sess.id, "error", err)
		}
		a.removeSession(sess.id, "write-error")
	}
}

// OnChildFrame is invoked by the Line Framer for every message the child
// writes to stdout. It fans the frame out to every session currently in
// the table; a send failure for a session removes that session.
func (a *Adapter) OnChildFrame(f *wire.Frame) {
	a.mu.Lock()
	targets := make([]*session, 0, len(a.sessions))
	for _, s := range a.sessions {
		targets = append(targets, s)
	}
	a.mu.Unlock()

	for _, s := range targets {
		if err := a.writeEvent(s, f.Raw); err != nil {
			a.removeSession(s.id, "send-error")
		}
	}
}

func (a *Adapter) writeEvent(s *session, raw []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", raw); err != nil {
		return err
	}
	s.flus.Flush()
	return nil
}

func (a *Adapter) removeSession(id, reason string) {
	a.mu.Lock()
	sess, ok := a.sessions[id]
	if ok {
		delete(a.sessions, id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-sess.done:
	default:
		close(sess.done)
	}
	if a.metrics != nil {
		a.metrics.SessionsExpired.WithLabelValues(a.bindingName, "sse", reason).Inc()
		a.metrics.SessionsActive.WithLabelValues(a.bindingName, "sse").Dec()
	}
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
