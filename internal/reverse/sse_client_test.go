package reverse

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEClientRoundTrip(t *testing.T) {
	receivedBody := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: endpoint\ndata: /message\n\n")
		flusher.Flush()
		fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody <- string(body)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewSSEClient(srv.URL+"/sse", nil, nil)
	stdin, stdout, err := c.Start(t.Context())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Close()

	reader := bufio.NewReader(stdout)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(line, `"result"`) {
		t.Fatalf("unexpected line from SSE stream: %s", line)
	}

	if _, err := stdin.Write([]byte("{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"ping\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case body := <-receivedBody:
		if !strings.Contains(body, `"id":2`) {
			t.Fatalf("unexpected POSTed body: %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for POST to remote message endpoint")
	}
}
