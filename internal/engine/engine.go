package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpbridge/gateway/internal/childproc"
	"github.com/mcpbridge/gateway/internal/config"
	"github.com/mcpbridge/gateway/internal/metrics"
)

// Engine is the running forward-mode process: every configured binding's
// child and transport adapter, mounted on one HTTP server.
type Engine struct {
	opts    *config.Options
	logger  *slog.Logger
	metrics *metrics.Registry
	server  *http.Server

	mu       sync.Mutex
	bindings []*binding
	fatal    chan error
	ready    atomic.Bool
}

// New builds an Engine from already-validated Options. ctx governs the
// lifetime of every spawned child process.
func New(ctx context.Context, o *config.Options, logger *slog.Logger, reg prometheus.Registerer) (*Engine, error) {
	e := &Engine{
		opts:    o,
		logger:  logger,
		metrics: metrics.New(reg),
		fatal:   make(chan error, 1),
	}

	mux := http.NewServeMux()
	claimed := make(map[string]string)

	registerPath := func(bindingName, path string, handler http.Handler) error {
		if existing, ok := claimed[path]; ok {
			return fmt.Errorf("route conflict at %s: %s vs %s", path, existing, bindingName)
		}
		claimed[path] = bindingName
		mux.Handle(path, handler)
		return nil
	}

	for _, cfg := range o.Bindings {
		b, regs, err := newBinding(ctx, cfg, o, logger, e.metrics, e.onChildDeath)
		if err != nil {
			return nil, err
		}
		for _, r := range regs {
			if err := registerPath(cfg.Name, r.Path, r.Handler); err != nil {
				return nil, err
			}
		}
		e.bindings = append(e.bindings, b)
	}

	for _, path := range o.HealthEndpoints {
		mux.HandleFunc(path, e.handleHealth)
	}
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	outboundHeaders := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		outboundHeaders[k] = v
	}
	if o.OAuth2Bearer != "" {
		outboundHeaders["Authorization"] = "Bearer " + o.OAuth2Bearer
	}

	var handler http.Handler = mux
	handler = withCORS(o.CORS, handler)
	handler = withHeaders(outboundHeaders, handler)

	e.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", o.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	e.ready.Store(true)
	return e, nil
}

// onChildDeath implements spec.md §4.2/§9: an SSE binding has exactly one
// child for its whole lifetime with no per-session recovery path, so losing
// it is fatal to the process. WebSocket bindings wire their own exit
// handler in newWSBinding instead of this one, since a WebSocket child's
// death must only mark its binding unhealthy, not stop the process.
func (e *Engine) onChildDeath(bindingName string, info childproc.ExitInfo) {
	if e.logger != nil {
		e.logger.Error("binding child exited, shutting down", "binding", bindingName, "code", info.Code, "signal", info.Signal)
	}
	select {
	case e.fatal <- fmt.Errorf("binding %q child exited (code=%d signal=%s)", bindingName, info.Code, info.Signal):
	default:
	}
}

// handleHealth implements spec.md §4.8: 500 if the engine has not finished
// starting, or if any supervised binding's child has exited, 200 otherwise.
func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !e.ready.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	for _, b := range e.bindings {
		if !b.Healthy() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("unhealthy"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Run serves until ctx is cancelled, the HTTP server fails, or a binding's
// shared child dies unexpectedly.
func (e *Engine) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		return e.shutdown()
	case err := <-e.fatal:
		_ = e.shutdown()
		return err
	case err := <-serveErr:
		return err
	}
}

func (e *Engine) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.server.Shutdown(ctx)
}

// withHeaders injects the --header and --oauth2Bearer values of spec.md §6
// into every outbound response, regardless of which transport adapter
// produced it. Forward mode treats --oauth2Bearer as just another header to
// add to the Authorization key, mirroring --header rather than gating
// inbound requests.
func withHeaders(headers map[string]string, next http.Handler) http.Handler {
	if len(headers) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(cors config.CORSConfig, next http.Handler) http.Handler {
	var originRE *regexp.Regexp
	if cors.Regex != "" {
		originRE = regexp.MustCompile(cors.Regex)
	}
	allowed := make(map[string]bool, len(cors.Origins))
	for _, o := range cors.Origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case cors.AllowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case originRE != nil && originRE.MatchString(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
