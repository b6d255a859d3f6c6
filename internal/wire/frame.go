// Package wire implements the line-delimited JSON-RPC framing shared by
// every transport adapter: turning a child process's stdout byte stream
// into discrete messages, and turning a message back into exactly one
// line on the child's stdin.
package wire

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction records which way a Frame is flowing through a binding.
type Direction int

const (
	// ClientToChild is a message headed for the child process's stdin.
	ClientToChild Direction = iota
	// ChildToClient is a message read off the child process's stdout.
	ChildToClient
)

func (d Direction) String() string {
	if d == ClientToChild {
		return "client->child"
	}
	return "child->client"
}

// Frame wraps one decoded JSON-RPC message together with the raw bytes it
// was parsed from, mirroring the dual raw/decoded representation used
// throughout this proxy family: the raw bytes support cheap passthrough,
// the decoded value supports inspecting method/id without re-parsing.
type Frame struct {
	Raw       []byte
	Direction Direction
	Decoded   jsonrpc.Message // *jsonrpc.Request or *jsonrpc.Response
	Received  time.Time
}

// Parse decodes a single line (already stripped of its terminator) into a
// Frame. The line must be valid JSON-RPC 2.0; callers are expected to log
// and drop lines that fail to parse rather than propagate the error onward.
func Parse(line []byte, dir Direction) (*Frame, error) {
	decoded, err := jsonrpc.DecodeMessage(line)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Raw:       line,
		Direction: dir,
		Decoded:   decoded,
		Received:  time.Now(),
	}, nil
}

// IsRequest reports whether the frame carries a JSON-RPC request.
func (f *Frame) IsRequest() bool {
	if f == nil || f.Decoded == nil {
		return false
	}
	_, ok := f.Decoded.(*jsonrpc.Request)
	return ok
}

// Method returns the request method, or "" if this is not a request.
func (f *Frame) Method() string {
	req, ok := f.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// Request returns the underlying request, or nil if this is not one.
func (f *Frame) Request() *jsonrpc.Request {
	req, _ := f.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying response, or nil if this is not one.
func (f *Frame) Response() *jsonrpc.Response {
	resp, _ := f.Decoded.(*jsonrpc.Response)
	return resp
}

// RawID extracts the "id" field straight from the raw bytes. jsonrpc.ID
// does not round-trip cleanly through an interface{} comparison, so
// matching on the wire representation is more reliable than comparing
// decoded ID values.
func (f *Frame) RawID() json.RawMessage {
	if f == nil || f.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(f.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}

// Encode serializes msg as the wire form expected on a child's stdin: one
// JSON object with no trailing newline (callers append "\n" themselves so
// the invariant "exactly one line per message" stays visible at the call
// site writing to the pipe).
func Encode(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}
