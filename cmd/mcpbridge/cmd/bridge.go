package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mcpbridge/gateway/internal/config"
	"github.com/mcpbridge/gateway/internal/engine"
	"github.com/mcpbridge/gateway/internal/reverse"
)

var bridgeFlags struct {
	stdio              []string
	sse                string
	streamableHTTP     string
	multiServerConfig  string
	outputTransport    string
	port               int
	baseURL            string
	ssePath            string
	messagePath        string
	streamableHTTPPath string
	logLevel           string
	cors               []string
	healthEndpoints    []string
	headers            []string
	oauth2Bearer       string
	stateful           bool
	sessionTimeoutMS   int
	protocolVersion    string
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the protocol bridge",
	Long: `Run the protocol bridge in forward mode (spawn stdio MCP server(s),
expose a network transport) or reverse mode (dial a remote network MCP
server, expose local stdio).

Examples:
  mcpbridge bridge --stdio "my-mcp-server" --outputTransport streamableHttp
  mcpbridge bridge --stdio "a=server-a" --stdio "b=server-b"
  mcpbridge bridge --multiServerConfig servers.json
  mcpbridge bridge --sse https://example.com/sse`,
	RunE: runBridge,
}

func init() {
	f := bridgeCmd.Flags()
	f.StringArrayVar(&bridgeFlags.stdio, "stdio", nil, "forward mode: spawn this command (repeatable; name=command for multi-binding)")
	f.StringVar(&bridgeFlags.sse, "sse", "", "reverse mode: dial this remote SSE MCP endpoint")
	f.StringVar(&bridgeFlags.streamableHTTP, "streamableHttp", "", "reverse mode: dial this remote Streamable-HTTP MCP endpoint")
	f.StringVar(&bridgeFlags.multiServerConfig, "multiServerConfig", "", "forward mode: JSON file of {servers:[{path,stdio}]}")
	f.StringVar(&bridgeFlags.outputTransport, "outputTransport", "", "stdio|sse|ws|streamableHttp (default: sse for --stdio, stdio for --sse/--streamableHttp)")
	f.IntVar(&bridgeFlags.port, "port", config.DefaultPort, "HTTP listen port")
	f.StringVar(&bridgeFlags.baseURL, "baseUrl", "", "absolute base URL used to compose the message URL advertised over SSE")
	f.StringVar(&bridgeFlags.ssePath, "ssePath", config.DefaultSSEPath, "SSE subscribe path")
	f.StringVar(&bridgeFlags.messagePath, "messagePath", config.DefaultMessagePath, "SSE message-delivery path")
	f.StringVar(&bridgeFlags.streamableHTTPPath, "streamableHttpPath", config.DefaultStreamableHTTPPath, "Streamable-HTTP path")
	f.StringVar(&bridgeFlags.logLevel, "logLevel", "info", "debug|info|none")
	// StringSlice (not StringArray) so a bare "--cors" with no values parses
	// as an empty slice instead of pflag demanding an argument.
	f.StringSliceVar(&bridgeFlags.cors, "cors", nil, "allowed CORS origins; no args allows all; \"/regex/\" matches by regex")
	f.StringArrayVar(&bridgeFlags.healthEndpoints, "healthEndpoint", nil, "path that responds 200 ok (repeatable)")
	f.StringArrayVar(&bridgeFlags.headers, "header", nil, `"Key: Value" header to inject (repeatable)`)
	f.StringVar(&bridgeFlags.oauth2Bearer, "oauth2Bearer", "", "send Authorization: Bearer <token> as an outbound header")
	f.BoolVar(&bridgeFlags.stateful, "stateful", false, "use the stateful Streamable-HTTP adapter")
	f.IntVar(&bridgeFlags.sessionTimeoutMS, "sessionTimeout", 0, "idle timeout (ms) for stateful sessions")
	f.StringVar(&bridgeFlags.protocolVersion, "protocolVersion", config.DefaultProtocolVersion, "protocol version used by the stateless auto-initialize")

	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	o, mode, err := buildOptions(cmd)
	if err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(o.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case config.ModeReverseSSE, config.ModeReverseHTTP:
		return runReverse(ctx, o, logger)
	default:
		return runForward(ctx, o, logger)
	}
}

func runForward(ctx context.Context, o *config.Options, logger *slog.Logger) error {
	e, err := engine.New(ctx, o, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	logger.Info("mcpbridge starting",
		"mode", o.Mode,
		"outputTransport", o.OutputTransport,
		"port", o.Port,
		"bindings", len(o.Bindings),
	)
	if err := e.Run(ctx); err != nil {
		return fmt.Errorf("engine stopped: %w", err)
	}
	logger.Info("mcpbridge stopped")
	return nil
}

func runReverse(ctx context.Context, o *config.Options, logger *slog.Logger) error {
	headers := toHTTPHeader(o.Headers)
	if o.OAuth2Bearer != "" {
		headers.Set("Authorization", "Bearer "+o.OAuth2Bearer)
	}

	var client reverse.Client
	switch o.Mode {
	case config.ModeReverseSSE:
		client = reverse.NewSSEClient(o.RemoteURL, headers, logger)
	case config.ModeReverseHTTP:
		client = reverse.NewStreamHTTPClient(o.RemoteURL, headers, logger)
	default:
		return fmt.Errorf("unreachable: reverse mode %q", o.Mode)
	}

	logger.Info("mcpbridge starting", "mode", o.Mode, "remote", o.RemoteURL)
	host := reverse.NewHost(client, logger)
	return host.Run(ctx)
}

// buildOptions turns the parsed bridge flags into a config.Options and its
// selected Mode, applying the per-mode defaults of spec.md §6.
func buildOptions(cmd *cobra.Command) (*config.Options, config.Mode, error) {
	f := bridgeFlags
	flags := cmd.Flags()

	set := 0
	for _, changed := range []bool{
		flags.Changed("stdio"),
		flags.Changed("sse"),
		flags.Changed("streamableHttp"),
		flags.Changed("multiServerConfig"),
	} {
		if changed {
			set++
		}
	}
	if set != 1 {
		return nil, "", fmt.Errorf("exactly one of --stdio, --sse, --streamableHttp, --multiServerConfig must be active")
	}

	o := config.New()

	var mode config.Mode
	switch {
	case flags.Changed("stdio"):
		mode = config.ModeStdio
		bindings, err := parseStdioBindings(f.stdio)
		if err != nil {
			return nil, "", err
		}
		o.Bindings = bindings
	case flags.Changed("sse"):
		mode = config.ModeReverseSSE
		o.RemoteURL = f.sse
	case flags.Changed("streamableHttp"):
		mode = config.ModeReverseHTTP
		o.RemoteURL = f.streamableHTTP
	case flags.Changed("multiServerConfig"):
		mode = config.ModeMultiServer
		bindings, err := config.LoadMultiServerConfig(f.multiServerConfig)
		if err != nil {
			return nil, "", err
		}
		o.Bindings = bindings
	}
	o.Mode = mode

	if f.outputTransport != "" {
		o.OutputTransport = config.OutputTransport(f.outputTransport)
	} else if mode == config.ModeStdio || mode == config.ModeMultiServer {
		o.OutputTransport = config.OutputSSE
	} else {
		o.OutputTransport = config.OutputStdio
	}

	o.Port = f.port
	o.BaseURL = f.baseURL
	o.SSEPath = f.ssePath
	o.MessagePath = f.messagePath
	o.StreamableHTTPPath = f.streamableHTTPPath
	o.LogLevel = config.LogLevel(f.logLevel)
	o.HealthEndpoints = f.healthEndpoints
	o.OAuth2Bearer = f.oauth2Bearer
	o.Stateful = f.stateful
	o.SessionTimeoutMS = f.sessionTimeoutMS
	o.ProtocolVersion = f.protocolVersion

	headers, err := parseHeaders(f.headers)
	if err != nil {
		return nil, "", err
	}
	o.Headers = headers

	o.CORS = parseCORS(flags.Changed("cors"), f.cors)

	return o, mode, nil
}

// parseStdioBindings implements spec.md §6's --stdio shape: if every value
// contains "=", each is a "name=command" multi-binding; otherwise there must
// be exactly one value, used as the single binding under "/".
func parseStdioBindings(values []string) ([]config.Binding, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("--stdio requires at least one value")
	}

	allNamed := true
	for _, v := range values {
		if !strings.Contains(v, "=") {
			allNamed = false
			break
		}
	}

	if allNamed {
		bindings := make([]config.Binding, 0, len(values))
		for _, v := range values {
			name, command, _ := strings.Cut(v, "=")
			bindings = append(bindings, config.Binding{
				Name:    name,
				Prefix:  "/" + name,
				Command: command,
			})
		}
		return bindings, nil
	}

	if len(values) != 1 {
		return nil, fmt.Errorf("--stdio: multiple values require name=command form")
	}
	return []config.Binding{{Prefix: "/", Command: values[0]}}, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("--header %q: expected \"Key: Value\"", v)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return headers, nil
}

func toHTTPHeader(headers map[string]string) http.Header {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}

// parseCORS implements spec.md §6's --cors shape: flag absent means no CORS
// handling beyond defaults, flag present with no values means allow-all, a
// single "/regex/"-quoted value means regex match, otherwise literal origins.
func parseCORS(changed bool, values []string) config.CORSConfig {
	if !changed {
		return config.CORSConfig{}
	}
	if len(values) == 0 {
		return config.CORSConfig{AllowAll: true}
	}
	if len(values) == 1 && strings.HasPrefix(values[0], "/") && strings.HasSuffix(values[0], "/") && len(values[0]) > 1 {
		return config.CORSConfig{Regex: strings.Trim(values[0], "/")}
	}
	return config.CORSConfig{Origins: values}
}

func newLogger(level config.LogLevel) *slog.Logger {
	if level == config.LogNone {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	slogLevel := slog.LevelInfo
	if level == config.LogDebug {
		slogLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}
