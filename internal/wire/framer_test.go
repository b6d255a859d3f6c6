package wire

import (
	"strings"
	"testing"
)

func TestFramerRoundTrip(t *testing.T) {
	var got []string
	f := NewFramer(ChildToClient, nil, func(fr *Frame) {
		got = append(got, string(fr.Raw))
	}, nil)

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"result":{}}` + "\r\n"
	f.Feed([]byte(input))

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d: %v", len(got), got)
	}
	if !strings.Contains(got[0], `"tools/list"`) {
		t.Errorf("unexpected first frame: %s", got[0])
	}
}

func TestFramerSplitAcrossChunks(t *testing.T) {
	var got []string
	f := NewFramer(ChildToClient, nil, func(fr *Frame) {
		got = append(got, string(fr.Raw))
	}, nil)

	full := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"
	f.Feed([]byte(full[:10]))
	f.Feed([]byte(full[10:]))

	if len(got) != 1 {
		t.Fatalf("expected 1 frame once the line completes, got %d", len(got))
	}
}

func TestFramerDropsNonJSONLines(t *testing.T) {
	var got, dropped int
	f := NewFramer(ChildToClient, nil, func(fr *Frame) { got++ }, func() { dropped++ })

	f.Feed([]byte("not json at all\n"))
	f.Feed([]byte("\n")) // empty line, ignored
	f.Feed([]byte(`{"jsonrpc":"2.0","id":1,"method":"x"}` + "\n"))

	if got != 1 {
		t.Fatalf("expected only the valid line to be emitted, got %d", got)
	}
	if dropped != 1 {
		t.Fatalf("expected the non-JSON line to report one drop, got %d", dropped)
	}
}

func TestFramerRetainsPartialTail(t *testing.T) {
	var got int
	f := NewFramer(ChildToClient, nil, func(fr *Frame) { got++ }, nil)

	f.Feed([]byte(`{"jsonrpc":"2.0","id":1,"method":"x"`))
	if got != 0 {
		t.Fatalf("no line terminator yet, expected 0 frames, got %d", got)
	}
	f.Feed([]byte("}\n"))
	if got != 1 {
		t.Fatalf("expected the completed line to emit, got %d", got)
	}
}
