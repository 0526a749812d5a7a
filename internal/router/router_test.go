package router

import (
	"sync"
	"testing"

	"github.com/agent-console/stream/pkg/wire"
)

func msgFrame(sessionID string, seq int64) wire.Frame {
	return &wire.Message{
		SessionID:   sessionID,
		Role:        wire.RoleAssistant,
		MessageType: "text",
		Sequence:    seq,
		Timestamp:   "2024-01-01T00:00:00Z",
	}
}

// TestSubscribeAndDispatch tests basic key-scoped delivery.
func TestSubscribeAndDispatch(t *testing.T) {
	r := New()

	var got []int64
	unsub := r.Subscribe("s1", func(f wire.Frame) {
		got = append(got, f.(*wire.Message).Sequence)
	})
	defer unsub()

	r.Dispatch(msgFrame("s1", 1))
	r.Dispatch(msgFrame("s2", 2)) // different session, not delivered
	r.Dispatch(msgFrame("s1", 3))

	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("expected sequences [1 3], got %v", got)
	}
}

// TestWildcardReceivesEverything tests the wildcard key alongside a
// session-scoped subscriber.
func TestWildcardReceivesEverything(t *testing.T) {
	r := New()

	var s1Count, wildcardCount int
	r.Subscribe("s1", func(wire.Frame) { s1Count++ })
	r.Subscribe(Wildcard, func(wire.Frame) { wildcardCount++ })

	r.Dispatch(msgFrame("s1", 1))
	if s1Count != 1 || wildcardCount != 1 {
		t.Errorf("after s1 frame: s1=%d wildcard=%d, want 1/1", s1Count, wildcardCount)
	}

	r.Dispatch(msgFrame("s2", 2))
	if s1Count != 1 || wildcardCount != 2 {
		t.Errorf("after s2 frame: s1=%d wildcard=%d, want 1/2", s1Count, wildcardCount)
	}
}

// TestSessionlessErrorOnlyReachesWildcard tests that error frames without
// a session ID are delivered to wildcard subscribers only.
func TestSessionlessErrorOnlyReachesWildcard(t *testing.T) {
	r := New()

	var s1Count, wildcardCount int
	r.Subscribe("s1", func(wire.Frame) { s1Count++ })
	r.Subscribe(Wildcard, func(wire.Frame) { wildcardCount++ })

	r.Dispatch(&wire.Error{Type: "error", Message: "upstream timeout"})

	if s1Count != 0 {
		t.Errorf("session subscriber received sessionless frame")
	}
	if wildcardCount != 1 {
		t.Errorf("wildcard count = %d, want 1", wildcardCount)
	}
}

// TestUnsubscribeRemovesExactlyOne tests that each unsubscribe closure
// removes only its own registration and is idempotent.
func TestUnsubscribeRemovesExactlyOne(t *testing.T) {
	r := New()

	var a, b int
	unsubA := r.Subscribe("s1", func(wire.Frame) { a++ })
	r.Subscribe("s1", func(wire.Frame) { b++ })

	unsubA()
	unsubA() // second call is a no-op

	r.Dispatch(msgFrame("s1", 1))

	if a != 0 {
		t.Errorf("unsubscribed handler was invoked %d times", a)
	}
	if b != 1 {
		t.Errorf("remaining handler invoked %d times, want 1", b)
	}
	if r.HandlerCount("s1") != 1 {
		t.Errorf("handler count = %d, want 1", r.HandlerCount("s1"))
	}
}

// TestLastUnsubscribeRemovesKey tests the map cleanup invariant.
func TestLastUnsubscribeRemovesKey(t *testing.T) {
	r := New()

	unsub1 := r.Subscribe("s1", func(wire.Frame) {})
	unsub2 := r.Subscribe("s1", func(wire.Frame) {})
	r.Subscribe("s2", func(wire.Frame) {})

	if r.KeyCount() != 2 {
		t.Fatalf("key count = %d, want 2", r.KeyCount())
	}

	unsub1()
	if r.KeyCount() != 2 {
		t.Errorf("key removed while a handler remains")
	}

	unsub2()
	if r.KeyCount() != 1 {
		t.Errorf("key count = %d after last unsubscribe, want 1", r.KeyCount())
	}
	if r.HandlerCount("s1") != 0 {
		t.Errorf("s1 still has %d handlers", r.HandlerCount("s1"))
	}
}

// TestPanickingSubscriberIsIsolated tests that a panic in one handler does
// not prevent delivery to others, nor delivery of later frames.
func TestPanickingSubscriberIsIsolated(t *testing.T) {
	r := New()

	var healthy, wildcard int
	r.Subscribe("s1", func(wire.Frame) { panic("subscriber bug") })
	r.Subscribe("s1", func(wire.Frame) { healthy++ })
	r.Subscribe(Wildcard, func(wire.Frame) { wildcard++ })

	r.Dispatch(msgFrame("s1", 1))
	r.Dispatch(msgFrame("s1", 2))

	if healthy != 2 {
		t.Errorf("healthy subscriber invoked %d times, want 2", healthy)
	}
	if wildcard != 2 {
		t.Errorf("wildcard subscriber invoked %d times, want 2", wildcard)
	}
	if r.HandlerCount("s1") != 2 {
		t.Errorf("subscription map corrupted: %d handlers under s1", r.HandlerCount("s1"))
	}
}

// TestUnsubscribeDuringDispatch tests that a handler may remove itself
// while a dispatch is in flight.
func TestUnsubscribeDuringDispatch(t *testing.T) {
	r := New()

	var calls int
	var unsub func()
	unsub = r.Subscribe("s1", func(wire.Frame) {
		calls++
		unsub()
	})

	r.Dispatch(msgFrame("s1", 1))
	r.Dispatch(msgFrame("s1", 2))

	if calls != 1 {
		t.Errorf("self-unsubscribing handler invoked %d times, want 1", calls)
	}
	if r.KeyCount() != 0 {
		t.Errorf("key count = %d, want 0", r.KeyCount())
	}
}

// TestConcurrentSubscribeUnsubscribe exercises dispatch racing with
// registration churn from other goroutines.
func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	r := New()

	done := make(chan struct{})
	var wg sync.WaitGroup

	// Churn goroutines: subscribe and immediately unsubscribe.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				unsub := r.Subscribe("s1", func(wire.Frame) {})
				unsub()
			}
		}()
	}

	for seq := int64(0); seq < 1000; seq++ {
		r.Dispatch(msgFrame("s1", seq))
	}

	close(done)
	wg.Wait()

	if r.KeyCount() != 0 {
		t.Errorf("key count = %d after churn, want 0", r.KeyCount())
	}
}
