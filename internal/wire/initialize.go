package wire

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

const initIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewTrackedInitID generates the "init_<millis>_<9-char base36>" id the
// stateless adapter's interposer uses to recognize the response to the
// synthetic initialize call it injected.
func NewTrackedInitID(nowMillis int64) string {
	b := make([]byte, 9)
	_, _ = rand.Read(b)
	suffix := make([]byte, 9)
	for i, c := range b {
		suffix[i] = initIDAlphabet[int(c)%len(initIDAlphabet)]
	}
	return fmt.Sprintf("init_%d_%s", nowMillis, string(suffix))
}

// initializeParams mirrors the wire shape of the official SDK's
// mcp.InitializeParams/mcp.ClientCapabilities/mcp.Implementation. Those
// types carry unexported invariants (clone/toV2 helpers for a historical
// schema migration) that only matter to a full client/server session;
// since the interposer only ever marshals one literal value, the wire
// shape is reproduced directly rather than importing the root package
// purely for its struct tags.
type initializeParams struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    clientCapabilities  `json:"capabilities"`
	ClientInfo      implementation      `json:"clientInfo"`
}

type clientCapabilities struct {
	Roots struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"roots"`
	Sampling struct{} `json:"sampling"`
}

type implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BuildInitializeRequest constructs the synthetic "initialize" request the
// stateless adapter sends to the child on behalf of a client whose first
// message was not itself an initialize call. protocolVersion comes from
// CLI configuration (--protocolVersion, default "2024-11-05"); clientVersion
// is whatever the caller passes (the engine passes a fixed "1.0.0").
func BuildInitializeRequest(id, protocolVersion, clientVersion string) ([]byte, error) {
	rpcID, err := jsonrpc.MakeID(id)
	if err != nil {
		return nil, fmt.Errorf("build initialize id: %w", err)
	}

	params := initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo: implementation{
			Name:    "supergateway",
			Version: clientVersion,
		},
	}
	params.Capabilities.Roots.ListChanged = true

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize params: %w", err)
	}

	req := &jsonrpc.Request{
		ID:     rpcID,
		Method: "initialize",
		Params: rawParams,
	}
	return jsonrpc.EncodeMessage(req)
}

// BuildInitializedNotification constructs the "notifications/initialized"
// notification the interposer writes to the child right after it observes
// the synthetic initialize response, and strictly before the pending
// original client message.
func BuildInitializedNotification() ([]byte, error) {
	req := &jsonrpc.Request{
		Method: "notifications/initialized",
	}
	return jsonrpc.EncodeMessage(req)
}
