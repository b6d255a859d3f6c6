package reverse

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStreamHTTPClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-1")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer srv.Close()

	c := NewStreamHTTPClient(srv.URL, nil, nil)
	stdin, stdout, err := c.Start(t.Context())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Close()

	if _, err := stdin.Write([]byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(stdout)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(line, `"id":1`) {
		t.Fatalf("unexpected response line: %s", line)
	}
}

func TestStreamHTTPClientReusesSessionID(t *testing.T) {
	var seenSession string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenSession = r.Header.Get("Mcp-Session-Id")
		w.Header().Set("Mcp-Session-Id", "sess-fixed")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer srv.Close()

	c := NewStreamHTTPClient(srv.URL, nil, nil)
	stdin, stdout, err := c.Start(t.Context())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Close()

	reader := bufio.NewReader(stdout)
	_, _ = stdin.Write([]byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n"))
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if seenSession != "" {
		t.Fatalf("expected no session id on first request, got %q", seenSession)
	}

	_, _ = stdin.Write([]byte("{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"ping\"}\n"))
	deadline := time.Now().Add(time.Second)
	var line string
	for time.Now().Before(deadline) {
		line, err = reader.ReadString('\n')
		if err == nil {
			break
		}
	}
	if line == "" {
		t.Fatal("expected a second response line")
	}
	if seenSession != "sess-fixed" {
		t.Fatalf("expected second request to carry sess-fixed, got %q", seenSession)
	}
}
