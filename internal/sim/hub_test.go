package sim

import (
	"testing"
	"time"

	"aviator-client/internal/protocol"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.sessions == nil {
		t.Error("Hub sessions map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_SessionCount(t *testing.T) {
	hub := NewHub()

	if count := hub.SessionCount(); count != 0 {
		t.Errorf("SessionCount() = %v, want 0", count)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()

	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	// No sessions registered; delivery is a no-op but must not block.
	hub.Broadcast(protocol.MultiplierUpdate{Multiplier: 1.5})
	time.Sleep(10 * time.Millisecond)
}

func TestHub_BroadcastQueueFull(t *testing.T) {
	hub := NewHub()

	// Hub not running, so the queue fills to capacity.
	for i := 0; i < 100; i++ {
		hub.Broadcast(protocol.MultiplierUpdate{Multiplier: 1.0})
	}

	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(protocol.MultiplierUpdate{Multiplier: 2.0})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Broadcast() blocked on a full queue")
	}
}
