package session

import (
	"testing"

	"locaty/internal/heading"
)

func TestBroadcaster_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)

	b.Publish(heading.Result{Angle: 1, Direction: heading.North, Available: true})
	b.Publish(heading.Result{Angle: 2, Direction: heading.North, Available: true})

	got := <-ch
	if got.Angle != 1 {
		t.Fatalf("angle=%v want 1", got.Angle)
	}
	last, ok := b.Last()
	if !ok || last.Angle != 2 {
		t.Fatalf("last=%+v ok=%v want angle 2", last, ok)
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe(0)
	if b.Len() != 1 {
		t.Fatalf("len=%d want 1", b.Len())
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if b.Len() != 0 {
		t.Fatalf("len=%d want 0", b.Len())
	}
	// Unknown ids are ignored.
	b.Unsubscribe(id)
	b.Publish(heading.Result{})
}

func TestBroadcaster_NilSafe(t *testing.T) {
	var b *Broadcaster
	id, ch := b.Subscribe(1)
	if id != 0 || ch != nil {
		t.Fatalf("nil broadcaster returned id=%d ch=%v", id, ch)
	}
	b.Publish(heading.Result{})
	b.Unsubscribe(0)
}
