package config

import "testing"

func validStdioOptions() *Options {
	o := New()
	o.Mode = ModeStdio
	o.Bindings = []Binding{{Prefix: "/", Command: "echo-mcp"}}
	return o
}

func TestValidateRequiresOneMode(t *testing.T) {
	o := New()
	if err := o.Validate(); err == nil {
		t.Fatal("expected error when no mode is selected")
	}
}

func TestValidateStdioOK(t *testing.T) {
	o := validStdioOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBindingRequiresLeadingSlash(t *testing.T) {
	o := New()
	o.Mode = ModeStdio
	o.Bindings = []Binding{{Prefix: "git", Command: "git-mcp"}}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for prefix without leading slash")
	}
}

func TestValidateReverseRequiresURL(t *testing.T) {
	o := New()
	o.Mode = ModeReverseSSE
	if err := o.Validate(); err == nil {
		t.Fatal("expected error when reverse mode has no remote URL")
	}
	o.RemoteURL = "https://example.com/sse"
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStatefulRequiresStreamableHTTP(t *testing.T) {
	o := validStdioOptions()
	o.Stateful = true
	o.OutputTransport = OutputSSE
	if err := o.Validate(); err == nil {
		t.Fatal("expected error: --stateful requires --outputTransport streamableHttp")
	}
	o.OutputTransport = OutputStreamableHTTP
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStatefulRejectedForMultiServerWS(t *testing.T) {
	o := New()
	o.Mode = ModeMultiServer
	o.Bindings = []Binding{{Name: "a", Prefix: "/a", Command: "a-mcp"}}
	o.Stateful = true
	o.OutputTransport = OutputStreamableHTTP
	o.OutputTransport = OutputWebSocket // force the combination spec forbids
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for stateful multi-server websocket")
	}
}

func TestValidateSessionTimeoutMustBePositive(t *testing.T) {
	o := validStdioOptions()
	o.Stateful = true
	o.OutputTransport = OutputStreamableHTTP
	o.SessionTimeoutMS = -5
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for negative session timeout")
	}
}

func TestFullPathDefaults(t *testing.T) {
	o := New()
	if o.SSEPath != DefaultSSEPath || o.MessagePath != DefaultMessagePath || o.StreamableHTTPPath != DefaultStreamableHTTPPath {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	if o.Port != DefaultPort {
		t.Fatalf("port default = %d, want %d", o.Port, DefaultPort)
	}
}
