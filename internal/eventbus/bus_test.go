package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeCycleDone, Data: CycleDone{Result: "ok"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeCycleDone || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypeLoopState})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: TypeAuthReady})
}

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, TypeReminderScan)
	defer unsub()

	b.Publish(Event{Type: TypeCycleDone})
	b.Publish(Event{Type: TypeReminderScan, Data: ReminderScan{DueSoon: 2}})

	select {
	case e := <-ch:
		if e.Type != TypeReminderScan {
			t.Fatalf("got %q, want only reminder scans", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered event not delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event %+v", e)
	default:
	}
}

func TestDroppedCountsFullBuffers(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TypeLoopState})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped = %d, want 4", got)
	}
}
