package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingBroker struct {
	hub  *Hub
	fail bool
	seen int
}

func (b *recordingBroker) Publish(_ context.Context, ev RealtimeEvent) error {
	b.seen++
	if b.fail {
		return errors.New("redis down")
	}
	b.hub.Deliver(ev)
	return nil
}

func TestHubDeliversPerUser(t *testing.T) {
	hub := NewHub()
	alice, bob := uuid.New(), uuid.New()

	a1, cancelA1 := hub.Subscribe(alice)
	a2, cancelA2 := hub.Subscribe(alice)
	b, cancelB := hub.Subscribe(bob)
	defer cancelB()

	hub.Publish(context.Background(), RealtimeEvent{Type: "insert", UserID: alice})

	for i, ch := range []<-chan RealtimeEvent{a1, a2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d missed the event", i)
		}
	}
	select {
	case <-b:
		t.Fatal("bob must not receive alice's event")
	default:
	}

	cancelA1()
	cancelA1()
	if hub.SubscriberCount(alice) != 1 {
		t.Fatalf("expected 1 subscriber left, got %d", hub.SubscriberCount(alice))
	}
	cancelA2()
	if hub.SubscriberCount(alice) != 0 {
		t.Fatal("expected no subscribers left")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	ch, cancel := hub.Subscribe(user)
	defer cancel()

	for i := 0; i < 40; i++ {
		hub.Deliver(RealtimeEvent{UserID: user})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected buffer to be full (%d), got %d", cap(ch), len(ch))
	}
}

func TestHubBrokerRouting(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	broker := &recordingBroker{hub: hub}
	hub.UseBroker(broker)

	ch, cancel := hub.Subscribe(user)
	defer cancel()

	hub.Publish(context.Background(), RealtimeEvent{UserID: user})
	if broker.seen != 1 || len(ch) != 1 {
		t.Fatalf("expected delivery through broker, seen=%d queued=%d", broker.seen, len(ch))
	}

	broker.fail = true
	hub.Publish(context.Background(), RealtimeEvent{UserID: user})
	if len(ch) != 2 {
		t.Fatalf("expected local fallback when the broker fails, queued=%d", len(ch))
	}
}
