package cmd

import "testing"

func TestParseStdioBindingsSingleUnnamed(t *testing.T) {
	bindings, err := parseStdioBindings([]string{"my-mcp-server --flag"})
	if err != nil {
		t.Fatalf("parseStdioBindings: %v", err)
	}
	if len(bindings) != 1 || bindings[0].Prefix != "/" {
		t.Fatalf("unexpected bindings: %+v", bindings)
	}
}

func TestParseStdioBindingsNamed(t *testing.T) {
	bindings, err := parseStdioBindings([]string{"a=server-a", "b=server-b"})
	if err != nil {
		t.Fatalf("parseStdioBindings: %v", err)
	}
	if len(bindings) != 2 || bindings[0].Prefix != "/a" || bindings[1].Prefix != "/b" {
		t.Fatalf("unexpected bindings: %+v", bindings)
	}
}

func TestParseStdioBindingsMixedNamingRejected(t *testing.T) {
	if _, err := parseStdioBindings([]string{"a=server-a", "server-b"}); err == nil {
		t.Fatal("expected an error for mixing named and unnamed --stdio values")
	}
}

func TestParseCORSNoArgsAllowsAll(t *testing.T) {
	cfg := parseCORS(true, nil)
	if !cfg.AllowAll {
		t.Fatalf("expected AllowAll, got %+v", cfg)
	}
}

func TestParseCORSNotChangedIsZeroValue(t *testing.T) {
	cfg := parseCORS(false, nil)
	if cfg.AllowAll || len(cfg.Origins) != 0 || cfg.Regex != "" {
		t.Fatalf("expected zero-value CORSConfig, got %+v", cfg)
	}
}

// toHTTPHeader plus the --oauth2Bearer merge in runReverse is what actually
// carries Authorization onto outbound reverse-mode requests; exercise the
// merge the way runReverse performs it.
func TestReverseModeHeadersIncludeOAuth2Bearer(t *testing.T) {
	headers := toHTTPHeader(map[string]string{"X-Extra": "1"})
	headers.Set("Authorization", "Bearer secret-token")

	if got := headers.Get("Authorization"); got != "Bearer secret-token" {
		t.Fatalf("Authorization header = %q, want %q", got, "Bearer secret-token")
	}
	if got := headers.Get("X-Extra"); got != "1" {
		t.Fatalf("X-Extra header = %q, want %q", got, "1")
	}
}
