package sensors

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseKind_RoundTrip(t *testing.T) {
	for _, k := range []Kind{KindAccelerometer, KindMagnetometer} {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k.String(), err)
		}
		if got != k {
			t.Fatalf("got=%v want=%v", got, k)
		}
	}
	if _, err := ParseKind("gyro"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoop_NoEventsAfterClose(t *testing.T) {
	var n atomic.Int64
	l := &Loop{Name: "test", Run: func(ctx context.Context, emit Sink) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			emit(Event{Kind: KindAccelerometer})
			time.Sleep(time.Millisecond)
		}
	}}

	if err := l.Start(context.Background(), func(Event) { n.Add(1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	if n.Load() != after {
		t.Fatalf("events delivered after Close: %d -> %d", after, n.Load())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLoop_RestartAfterClose(t *testing.T) {
	starts := 0
	l := &Loop{Run: func(ctx context.Context, emit Sink) error {
		starts++
		<-ctx.Done()
		return nil
	}}
	for i := 0; i < 2; i++ {
		if err := l.Start(context.Background(), func(Event) {}); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		if err := l.Start(context.Background(), func(Event) {}); err == nil {
			t.Fatalf("expected error on double start")
		}
		_ = l.Close()
	}
	if starts != 2 {
		t.Fatalf("starts=%d want 2", starts)
	}
}

func TestLoop_NilSinkErrors(t *testing.T) {
	l := &Loop{Run: func(ctx context.Context, emit Sink) error { return nil }}
	if err := l.Start(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
}
