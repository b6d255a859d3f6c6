package streamhttp

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcpbridge/gateway/internal/childproc"
	"github.com/mcpbridge/gateway/internal/metrics"
	"github.com/mcpbridge/gateway/internal/wire"
)

// StatelessAdapter implements spec.md §4.7: every POST spawns a fresh
// child, runs it through the auto-initialize interposer if needed, waits
// for exactly one response, then kills the child. GET and DELETE are not
// meaningful without a session and are rejected.
type StatelessAdapter struct {
	bindingName     string
	newChild        ChildFactory
	protocolVersion string
	clientVersion   string
	reqTimeout      time.Duration
	logger          *slog.Logger
	metrics         *metrics.Registry
}

// NewStatelessAdapter creates a StatelessAdapter.
func NewStatelessAdapter(bindingName string, newChild ChildFactory, protocolVersion, clientVersion string, logger *slog.Logger, m *metrics.Registry) *StatelessAdapter {
	return &StatelessAdapter{
		bindingName:     bindingName,
		newChild:        newChild,
		protocolVersion: protocolVersion,
		clientVersion:   clientVersion,
		reqTimeout:      30 * time.Second,
		logger:          logger,
		metrics:         m,
	}
}

func (a *StatelessAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write(wire.MethodNotAllowed())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	tr := newTransport(nil, a.logger)
	child, err := a.newChild(tr.onChildFrame, func(info childproc.ExitInfo) {
		if tr.markClosed() {
			if a.metrics != nil {
				a.metrics.ChildrenExited.WithLabelValues(a.bindingName).Inc()
			}
		}
		tr.failAll()
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(wire.InternalServerError())
		return
	}
	tr.child = child
	defer func() {
		if tr.markClosed() {
			_ = child.Kill()
		}
	}()

	if a.metrics != nil {
		a.metrics.ChildrenSpawned.Inc()
	}

	ip := newInterposer(tr, a.protocolVersion, a.clientVersion, a.reqTimeout)
	frame, err := ip.Run(r.Context(), body)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("stateless request failed", "binding", a.bindingName, "error", err)
		}
		if !headersSent(w) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(wire.InternalServerError())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Raw)
}

// headersSent is always false here: the ResponseWriter never has its
// headers written before this check on any reachable path, but the guard
// keeps a future refactor from double-writing a status line.
func headersSent(http.ResponseWriter) bool { return false }
