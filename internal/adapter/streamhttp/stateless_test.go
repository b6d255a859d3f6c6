package streamhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcpbridge/gateway/internal/childproc"
	"github.com/mcpbridge/gateway/internal/wire"
)

// echoIDScript replies to every JSON-RPC request with {"result":{}} carrying
// back whatever "id" it was sent, regardless of whether the id is a number
// or a string.
const echoIDScript = `while read line; do
  id=$(printf '%s' "$line" | grep -o '"id":[^,}]*' | head -1 | cut -d: -f2-)
  printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$id"
done`

// echoIDAndLogScript behaves like echoIDScript but also appends the method
// of every request it receives to logPath, so a test can observe the exact
// sequence of calls the child saw.
func echoIDAndLogScript(logPath string) string {
	return fmt.Sprintf(`while read line; do
  id=$(printf '%%s' "$line" | grep -o '"id":[^,}]*' | head -1 | cut -d: -f2-)
  method=$(printf '%%s' "$line" | grep -o '"method":"[^"]*"' | cut -d: -f2- | tr -d '"')
  printf '%%s\n' "$method" >> %s
  printf '{"jsonrpc":"2.0","id":%%s,"result":{}}\n' "$id"
done`, logPath)
}

func testChildFactory(t *testing.T, script string) ChildFactory {
	t.Helper()
	return func(onMessage func(*wire.Frame), onExit func(childproc.ExitInfo)) (*childproc.Child, error) {
		c := childproc.New(script, nil, onMessage, onExit)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		t.Cleanup(cancel)
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func TestStatelessForwardsPlainRequest(t *testing.T) {
	a := NewStatelessAdapter("test", testChildFactory(t, echoIDScript), "2024-11-05", "1.0.0", nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
	rr := httptest.NewRecorder()
	a.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"id":7`) {
		t.Fatalf("expected response to echo id 7, got %s", rr.Body.String())
	}
}

func TestStatelessInterposesInitializeForNonInitRequest(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "methods.log")
	a := NewStatelessAdapter("test", testChildFactory(t, echoIDAndLogScript(logPath)), "2024-11-05", "1.0.0", nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":"call-1","method":"tools/list"}`))
	rr := httptest.NewRecorder()
	a.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"id":"call-1"`) {
		t.Fatalf("expected the client's own id back, got %s", rr.Body.String())
	}

	logged, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read method log: %v", err)
	}
	methods := strings.Fields(string(logged))
	if len(methods) != 3 {
		t.Fatalf("expected 3 calls to reach the child (initialize, notifications/initialized, tools/list), got %v", methods)
	}
	if methods[0] != "initialize" || methods[1] != "notifications/initialized" || methods[2] != "tools/list" {
		t.Fatalf("unexpected call sequence: %v", methods)
	}
}

func TestStatelessRejectsGet(t *testing.T) {
	a := NewStatelessAdapter("test", testChildFactory(t, echoIDScript), "2024-11-05", "1.0.0", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rr := httptest.NewRecorder()
	a.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}
