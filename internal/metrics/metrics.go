// Package metrics exposes the bridge's Prometheus instrumentation, in the
// style of this proxy family's HTTP transport (which registers a
// promhttp.Handler alongside its MCP mux).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the counters and gauges the engine updates as it spawns
// children, admits sessions, and frames messages. One Registry is shared
// across all bindings of a process.
type Registry struct {
	ChildrenSpawned  prometheus.Counter
	ChildrenExited   *prometheus.CounterVec
	SessionsCreated  *prometheus.CounterVec
	SessionsExpired  *prometheus.CounterVec
	FramesParsed     *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	SessionsActive   *prometheus.GaugeVec
}

// New creates and registers a Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ChildrenSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcpbridge_children_spawned_total",
			Help: "Number of child MCP server processes spawned.",
		}),
		ChildrenExited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpbridge_children_exited_total",
			Help: "Number of child process exits, labeled by binding.",
		}, []string{"binding"}),
		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpbridge_sessions_created_total",
			Help: "Number of network sessions created, labeled by binding and transport.",
		}, []string{"binding", "transport"}),
		SessionsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpbridge_sessions_expired_total",
			Help: "Number of sessions removed due to idle timeout, close, or error.",
		}, []string{"binding", "transport", "reason"}),
		FramesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpbridge_frames_parsed_total",
			Help: "Number of JSON-RPC frames successfully parsed, labeled by direction.",
		}, []string{"binding", "direction"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpbridge_frames_dropped_total",
			Help: "Number of stdout lines dropped for failing to parse as JSON-RPC.",
		}, []string{"binding"}),
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcpbridge_sessions_active",
			Help: "Number of sessions currently in a binding's session table.",
		}, []string{"binding", "transport"}),
	}

	reg.MustRegister(
		r.ChildrenSpawned,
		r.ChildrenExited,
		r.SessionsCreated,
		r.SessionsExpired,
		r.FramesParsed,
		r.FramesDropped,
		r.SessionsActive,
	)
	return r
}
