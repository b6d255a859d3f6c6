// Package config defines the engine's configuration surface: the Options
// value a CLI (or any other caller) builds before starting the engine.
// Flag parsing happens in the caller; this package validates the
// already-parsed Options and loads the --multiServerConfig JSON file.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which of the four mutually-exclusive run modes the engine
// operates in.
type Mode string

const (
	ModeStdio       Mode = "stdio"       // forward: spawn child(ren), expose a network transport
	ModeReverseSSE  Mode = "sse"         // reverse: dial a remote SSE MCP, expose stdio
	ModeReverseHTTP Mode = "streamableHttp"
	ModeMultiServer Mode = "multi-server"
)

// OutputTransport selects the network side of a forward binding.
type OutputTransport string

const (
	OutputSSE           OutputTransport = "sse"
	OutputStdio         OutputTransport = "stdio"
	OutputWebSocket     OutputTransport = "ws"
	OutputStreamableHTTP OutputTransport = "streamableHttp"
)

// LogLevel mirrors --logLevel.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogNone  LogLevel = "none"
)

// Binding is one (name, path-prefix, child-command) entry. In single-
// binding mode there is exactly one Binding with an empty Name and Prefix
// "/". In multi-server mode there is one per configured server.
type Binding struct {
	Name    string
	Prefix  string
	Command string
}

// CORSConfig mirrors --cors: no values means allow-all, a single
// "/regex/"-quoted value means regex match, otherwise literal origin
// strings.
type CORSConfig struct {
	AllowAll bool
	Regex    string
	Origins  []string
}

// Options is the full validated configuration the engine is started with.
type Options struct {
	Mode     Mode
	Bindings []Binding

	// Reverse-mode target (ModeReverseSSE / ModeReverseHTTP).
	RemoteURL string

	OutputTransport OutputTransport
	Stateful        bool
	SessionTimeoutMS int
	ProtocolVersion string

	Port    int
	BaseURL string

	SSEPath           string
	MessagePath       string
	StreamableHTTPPath string

	LogLevel LogLevel

	CORS CORSConfig

	HealthEndpoints []string
	Headers         map[string]string
	OAuth2Bearer    string
}

// Default path and port values, matching spec.md §6.
const (
	DefaultSSEPath           = "/sse"
	DefaultMessagePath       = "/message"
	DefaultStreamableHTTPPath = "/mcp"
	DefaultPort              = 8000
	DefaultProtocolVersion   = "2024-11-05"
)

// New returns an Options populated with spec-mandated defaults; callers
// overlay flag values on top before calling Validate.
func New() *Options {
	return &Options{
		OutputTransport:    OutputSSE,
		Port:               DefaultPort,
		SSEPath:            DefaultSSEPath,
		MessagePath:        DefaultMessagePath,
		StreamableHTTPPath: DefaultStreamableHTTPPath,
		LogLevel:           LogInfo,
		ProtocolVersion:    DefaultProtocolVersion,
		Headers:            map[string]string{},
	}
}

// Validate applies the CLI validation rules of spec.md §6. It returns a
// non-nil error (and the caller exits 1) on any violation.
func (o *Options) Validate() error {
	if err := o.validateModeExclusivity(); err != nil {
		return err
	}

	switch o.Mode {
	case ModeStdio, ModeMultiServer:
		if len(o.Bindings) == 0 {
			return errors.New("at least one binding is required")
		}
		for _, b := range o.Bindings {
			if b.Command == "" {
				return fmt.Errorf("binding %q: command must not be empty", b.Name)
			}
			if !strings.HasPrefix(b.Prefix, "/") {
				return fmt.Errorf("binding %q: prefix must begin with \"/\"", b.Name)
			}
		}
	case ModeReverseSSE, ModeReverseHTTP:
		if o.RemoteURL == "" {
			return fmt.Errorf("%s mode requires a remote URL", o.Mode)
		}
	}

	if o.Stateful {
		if o.OutputTransport != OutputStreamableHTTP {
			return errors.New("--stateful is only valid with --outputTransport streamableHttp")
		}
	}
	if o.Mode == ModeMultiServer && o.Stateful &&
		(o.OutputTransport == OutputSSE || o.OutputTransport == OutputWebSocket) {
		return errors.New("--stateful is not supported for multi-server SSE or WebSocket")
	}

	if o.SessionTimeoutMS < 0 {
		return errors.New("--sessionTimeout must be > 0 when set")
	}
	if o.SessionTimeoutMS > 0 && !o.Stateful {
		// Harmless outside stateful mode, but almost certainly a mistake;
		// the teacher's config validation rejects similarly-dead flags.
		return errors.New("--sessionTimeout only applies to --stateful mode")
	}

	return nil
}

func (o *Options) validateModeExclusivity() error {
	switch o.Mode {
	case ModeStdio, ModeReverseSSE, ModeReverseHTTP, ModeMultiServer:
		return nil
	default:
		return fmt.Errorf("exactly one of --stdio, --sse, --streamableHttp, --multiServerConfig must be active (got %q)", o.Mode)
	}
}
