package button

import (
	"errors"
	"io"
	"testing"
	"time"

	"locaty/internal/session"
)

type fakeLine struct {
	closed int
}

func (f *fakeLine) Close() error {
	f.closed++
	return nil
}

func stubOpen(t *testing.T, fn func(int, time.Duration, func(time.Time)) (io.Closer, error)) {
	t.Helper()
	old := openLineFn
	openLineFn = fn
	t.Cleanup(func() { openLineFn = old })
}

func TestService_PressDispatchesStopAction(t *testing.T) {
	var press func(time.Time)
	line := &fakeLine{}
	stubOpen(t, func(pin int, debounce time.Duration, onPress func(time.Time)) (io.Closer, error) {
		if pin != 27 {
			t.Fatalf("pin=%d want 27", pin)
		}
		if debounce != 50*time.Millisecond {
			t.Fatalf("debounce=%s", debounce)
		}
		press = onPress
		return line, nil
	})

	var got []session.Action
	s := New(Config{Enable: true, Pin: 27, NotificationID: 4}, func(a session.Action) error {
		got = append(got, a)
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Snapshot().Available {
		t.Fatalf("expected available")
	}

	t0 := time.Unix(1000, 0)
	press(t0)
	press(t0.Add(10 * time.Millisecond)) // bounce
	press(t0.Add(200 * time.Millisecond))

	if len(got) != 2 {
		t.Fatalf("actions=%d want 2", len(got))
	}
	if got[0] != session.StopAction(4) {
		t.Fatalf("action=%+v", got[0])
	}
	if s.Snapshot().Presses != 2 {
		t.Fatalf("presses=%d", s.Snapshot().Presses)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = s.Close()
	if line.closed != 1 {
		t.Fatalf("closed=%d want 1", line.closed)
	}
}

func TestService_DisabledDoesNotOpen(t *testing.T) {
	stubOpen(t, func(int, time.Duration, func(time.Time)) (io.Closer, error) {
		t.Fatalf("unexpected open")
		return nil, nil
	})
	s := New(Config{}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestService_OpenErrorRecorded(t *testing.T) {
	stubOpen(t, func(int, time.Duration, func(time.Time)) (io.Closer, error) {
		return nil, errors.New("busy")
	})
	s := New(Config{Enable: true}, nil)
	if err := s.Start(); err == nil {
		t.Fatalf("expected error")
	}
	if got := s.Snapshot().LastError; got != "busy" {
		t.Fatalf("last_error=%q", got)
	}
}

func TestService_HandlerErrorRecorded(t *testing.T) {
	s := New(Config{Enable: true}, func(session.Action) error { return errors.New("not running") })
	s.press(time.Unix(1, 0))
	if got := s.Snapshot().LastError; got != "not running" {
		t.Fatalf("last_error=%q", got)
	}
}
