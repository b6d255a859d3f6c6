package sessioncounter

import (
	"sync"
	"testing"
	"time"
)

func TestIncDecBasic(t *testing.T) {
	var expired []string
	c := New(0, func(k string) { expired = append(expired, k) }, nil)

	c.Inc("a", "post")
	c.Dec("a", "finish")
	if len(expired) != 0 {
		t.Fatalf("no timeout configured, onExpire must not fire: %v", expired)
	}
}

func TestIncCancelsArmedTimer(t *testing.T) {
	var fired []*capturingTimer
	c := New(time.Hour, func(string) {}, nil)
	c.newTimer = func(d time.Duration, f func()) timer {
		ct := &capturingTimer{fire: f}
		fired = append(fired, ct)
		return ct
	}

	c.Dec("s1", "response-end") // 0 -> arm timer
	if len(fired) != 1 {
		t.Fatalf("expected one timer armed, got %d", len(fired))
	}
	c.Inc("s1", "new-request") // cancel it
	if !fired[0].stopped {
		t.Fatalf("expected the armed timer to be stopped on Inc")
	}
}

func TestTimerFiresOnExpire(t *testing.T) {
	var mu sync.Mutex
	var expired []string
	c := New(time.Hour, func(k string) {
		mu.Lock()
		expired = append(expired, k)
		mu.Unlock()
	}, nil)

	var captured *capturingTimer
	c.newTimer = func(d time.Duration, f func()) timer {
		captured = &capturingTimer{fire: f}
		return captured
	}

	c.Dec("s1", "response-end")
	if captured == nil {
		t.Fatal("expected a timer to be armed")
	}
	captured.fireNow()

	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != "s1" {
		t.Fatalf("expected onExpire(s1) exactly once, got %v", expired)
	}
}

func TestClearWithFireInvokesOnExpire(t *testing.T) {
	var expired []string
	c := New(time.Hour, func(k string) { expired = append(expired, k) }, nil)

	c.Inc("s1", "post")
	c.Clear("s1", true, "delete")

	if len(expired) != 1 || expired[0] != "s1" {
		t.Fatalf("expected onExpire fired once via Clear, got %v", expired)
	}
}

func TestClearWithoutFireIsSilent(t *testing.T) {
	var expired []string
	c := New(time.Hour, func(k string) { expired = append(expired, k) }, nil)

	c.Inc("s1", "post")
	c.Clear("s1", false, "transport-close")

	if len(expired) != 0 {
		t.Fatalf("expected no onExpire call, got %v", expired)
	}
}

func TestDecNeverGoesBelowZero(t *testing.T) {
	c := New(0, func(string) {}, nil)
	c.Dec("s1", "x")
	c.Dec("s1", "x")
	c.mu.Lock()
	count := c.entries["s1"].count
	c.mu.Unlock()
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

// capturingTimer is a timer fake that records Stop() and lets the test
// invoke the scheduled function directly.
type capturingTimer struct {
	fire    func()
	stopped bool
}

func (c *capturingTimer) Stop() bool {
	c.stopped = true
	return true
}

func (c *capturingTimer) fireNow() {
	c.fire()
}
