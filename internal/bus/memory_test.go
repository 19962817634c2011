package bus

import (
	"context"
	"testing"
	"time"
)

func TestMemory_FIFOWithinLane(t *testing.T) {
	b := NewMemory(10, 100, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal, Type: "t", Payload: map[string]any{"i": i}})
	}

	for i := 0; i < 3; i++ {
		msg, ok, err := b.Receive(ctx, "r1")
		if err != nil || !ok {
			t.Fatalf("expected a message, got ok=%v err=%v", ok, err)
		}
		if int(msg.Payload["i"].(int)) != i {
			t.Fatalf("expected FIFO order, got payload %v at position %d", msg.Payload, i)
		}
	}
}

func TestMemory_PriorityDrainsBeforeNormal(t *testing.T) {
	b := NewMemory(10, 100, nil)
	ctx := context.Background()

	_ = b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal, Type: "low"})
	_ = b.Send(ctx, Message{Recipient: "r1", Lane: LanePriority, Type: "high"})

	msg, ok, _ := b.Receive(ctx, "r1")
	if !ok || msg.Type != "high" {
		t.Fatalf("expected the priority message first, got %+v", msg)
	}
	msg, ok, _ = b.Receive(ctx, "r1")
	if !ok || msg.Type != "low" {
		t.Fatalf("expected the normal message second, got %+v", msg)
	}
}

func TestMemory_ReceiveOnEmptyLaneReturnsFalse(t *testing.T) {
	b := NewMemory(10, 100, nil)
	_, ok, err := b.Receive(context.Background(), "nobody")
	if err != nil || ok {
		t.Fatalf("expected (false, nil) for an empty lane, got ok=%v err=%v", ok, err)
	}
}

func TestMemory_SendReportsQueueFullWithoutBlocking(t *testing.T) {
	b := NewMemory(1, 100, nil)
	ctx := context.Background()

	if err := b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal}); err != nil {
		t.Fatalf("unexpected error on first send: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal}) }()

	select {
	case err := <-done:
		if _, ok := err.(*ErrQueueFull); !ok {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked instead of reporting queue-full immediately")
	}
}

func TestMemory_HistoryCapsAtLimit(t *testing.T) {
	b := NewMemory(1000, 5, nil)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal, Type: "t", Timestamp: time.Now()})
	}
	hist, err := b.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(hist))
	}
}

func TestMemory_BroadcastFansOutToSubscribers(t *testing.T) {
	b := NewMemory(10, 100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = b.Broadcast(ctx, Message{Type: "announcement"})

	select {
	case msg := <-ch:
		if msg.Type != "announcement" {
			t.Fatalf("expected announcement, got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the broadcast")
	}
}

func TestMemory_ClearQueueDrainsPendingMessages(t *testing.T) {
	b := NewMemory(10, 100, nil)
	ctx := context.Background()
	_ = b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal})
	_ = b.Send(ctx, Message{Recipient: "r1", Lane: LaneNormal})

	if err := b.ClearQueue(ctx, "r1", LaneNormal); err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	size, _ := b.QueueSize(ctx, "r1", LaneNormal)
	if size != 0 {
		t.Fatalf("expected queue size 0 after clear, got %d", size)
	}
}
