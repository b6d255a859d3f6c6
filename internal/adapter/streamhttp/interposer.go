package streamhttp

import (
	"context"
	"fmt"
	"time"

	"github.com/mcpbridge/gateway/internal/wire"
)

// interposerState names a step of the stateless adapter's auto-initialize
// sequence (spec.md §4.7): a stateless child is freshly spawned per request
// and therefore never completed the MCP handshake, so any non-initialize
// request must first be preceded by a synthetic initialize/initialized pair
// that the real client never sees.
type interposerState int

const (
	stateIdle interposerState = iota
	stateInitializing
	stateForwarding
	stateDone
)

// interposer drives one stateless request's child through the handshake it
// needs before the client's actual message can be forwarded.
type interposer struct {
	tr              *transport
	protocolVersion string
	clientVersion   string
	timeout         time.Duration
	state           interposerState
}

func newInterposer(tr *transport, protocolVersion, clientVersion string, timeout time.Duration) *interposer {
	return &interposer{
		tr:              tr,
		protocolVersion: protocolVersion,
		clientVersion:   clientVersion,
		timeout:         timeout,
		state:           stateIdle,
	}
}

// Run forwards clientBody to the child, interposing a synthetic initialize
// handshake first unless clientBody is itself an initialize request. It
// returns the frame the real client should see as its response.
func (ip *interposer) Run(ctx context.Context, clientBody []byte) (*wire.Frame, error) {
	if looksLikeInitialize(clientBody) {
		ip.state = stateForwarding
		return ip.sendAndAwait(ctx, clientBody)
	}

	ip.state = stateInitializing
	initID := wire.NewTrackedInitID(time.Now().UnixMilli())
	initReq, err := wire.BuildInitializeRequest(initID, ip.protocolVersion, ip.clientVersion)
	if err != nil {
		return nil, fmt.Errorf("build interposed initialize: %w", err)
	}
	if _, err := ip.sendAndAwait(ctx, initReq); err != nil {
		return nil, fmt.Errorf("interposed initialize failed: %w", err)
	}

	notif, err := wire.BuildInitializedNotification()
	if err != nil {
		return nil, fmt.Errorf("build interposed initialized notification: %w", err)
	}
	if err := ip.tr.child.Send(notif); err != nil {
		return nil, fmt.Errorf("send interposed initialized notification: %w", err)
	}

	ip.state = stateForwarding
	frame, err := ip.sendAndAwait(ctx, clientBody)
	ip.state = stateDone
	return frame, err
}

func (ip *interposer) sendAndAwait(ctx context.Context, body []byte) (*wire.Frame, error) {
	id := rawID(body)
	waiter := ip.tr.awaitResponse(id)

	if err := ip.tr.child.Send(body); err != nil {
		ip.tr.cancelWait(id)
		return nil, err
	}

	deadline := ip.timeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}

	select {
	case frame := <-waiter:
		if frame == nil {
			return nil, fmt.Errorf("child exited before responding")
		}
		return frame, nil
	case <-ctx.Done():
		ip.tr.cancelWait(id)
		return nil, ctx.Err()
	case <-time.After(deadline):
		ip.tr.cancelWait(id)
		return nil, fmt.Errorf("timed out waiting for child response")
	}
}
