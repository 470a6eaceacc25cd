package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "x"})
	select {
	case e := <-ch:
		if e.Type != "x" {
			t.Fatalf("Type = %q", e.Type)
		}
		if e.Time.IsZero() {
			t.Fatal("Publish should stamp a zero Time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "kept"})
	b.Publish(Event{Type: "dropped"})

	if e := <-ch; e.Type != "kept" {
		t.Fatalf("Type = %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestUnsubscribeIsIdempotentAndSafe(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub()
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "after"})
}
