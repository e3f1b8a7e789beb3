package stream

import (
	"testing"
	"time"

	"relayd/internal/dispatch"
	logx "relayd/pkg/logx"
)

func rec(id int64, status dispatch.Status) dispatch.Record {
	return dispatch.Record{ID: id, Status: status}
}

func TestPublishNeverBlocksOnStalledSubscriber(t *testing.T) {
	b := New(4, logx.Nop())
	_ = b.Subscribe() // never reads

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(rec(int64(i), dispatch.StatusPending))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
	if b.Dropped() == 0 {
		t.Fatal("expected drops for the stalled subscriber")
	}
}

func TestSlowSubscriberKeepsNewestUpdates(t *testing.T) {
	b := New(2, logx.Nop())
	sub := b.Subscribe()

	for i := int64(1); i <= 3; i++ {
		b.Publish(rec(i, dispatch.StatusPending))
	}

	// Buffer of 2 held updates 1 and 2; publishing 3 dropped 1.
	first := <-sub.C()
	second := <-sub.C()
	if first.ID != 2 || second.ID != 3 {
		t.Fatalf("delivered ids (%d, %d), want (2, 3)", first.ID, second.ID)
	}
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestDeliveryPreservesPublishOrder(t *testing.T) {
	b := New(32, logx.Nop())
	sub := b.Subscribe()

	seq := []dispatch.Status{
		dispatch.StatusPending,
		dispatch.StatusInFlight,
		dispatch.StatusSent,
	}
	for _, st := range seq {
		b.Publish(rec(7, st))
	}
	for i, want := range seq {
		got := <-sub.C()
		if got.Status != want {
			t.Fatalf("update %d = %s, want %s", i, got.Status, want)
		}
	}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := New(8, logx.Nop())
	a := b.Subscribe()
	c := b.Subscribe()
	if got := b.Subscribers(); got != 2 {
		t.Fatalf("subscribers = %d, want 2", got)
	}

	b.Publish(rec(1, dispatch.StatusSent))
	for _, sub := range []*Subscription{a, c} {
		select {
		case got := <-sub.C():
			if got.ID != 1 {
				t.Fatalf("delivered id %d, want 1", got.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the update")
		}
	}
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := New(8, logx.Nop())
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	if _, open := <-sub.C(); open {
		t.Fatal("channel still open after unsubscribe")
	}
	if got := b.Subscribers(); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}

	// Publishing after detach must not panic on the closed channel.
	b.Publish(rec(1, dispatch.StatusPending))
	// Double unsubscribe is a no-op.
	b.Unsubscribe(sub)
}
