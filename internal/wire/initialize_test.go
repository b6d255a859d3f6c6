package wire

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewTrackedInitIDPrefix(t *testing.T) {
	id := NewTrackedInitID(1700000000000)
	if !strings.HasPrefix(id, "init_1700000000000_") {
		t.Fatalf("unexpected id shape: %s", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 3 || len(parts[2]) != 9 {
		t.Fatalf("expected a 9-char random suffix, got %q", id)
	}
}

func TestBuildInitializeRequest(t *testing.T) {
	raw, err := BuildInitializeRequest("init_1_abc123xyz", "2024-11-05", "0.1.0")
	if err != nil {
		t.Fatalf("BuildInitializeRequest: %v", err)
	}

	var decoded struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  struct {
			ProtocolVersion string `json:"protocolVersion"`
			ClientInfo      struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"clientInfo"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Method != "initialize" {
		t.Errorf("method = %q, want initialize", decoded.Method)
	}
	if decoded.ID != "init_1_abc123xyz" {
		t.Errorf("id = %q", decoded.ID)
	}
	if decoded.Params.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q", decoded.Params.ProtocolVersion)
	}
}

func TestBuildInitializedNotification(t *testing.T) {
	raw, err := BuildInitializedNotification()
	if err != nil {
		t.Fatalf("BuildInitializedNotification: %v", err)
	}
	if !strings.Contains(string(raw), `"notifications/initialized"`) {
		t.Fatalf("unexpected notification body: %s", raw)
	}
}
