package udp

import (
	"errors"
	"net"
	"strings"
	"testing"
)

type fakeConn struct {
	writes   [][]byte
	writeErr error
	closed   int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func fakeDial(fc *fakeConn, got **net.UDPAddr) dialFunc {
	return func(raddr *net.UDPAddr) (udpConn, error) {
		if got != nil {
			*got = raddr
		}
		return fc, nil
	}
}

func TestNewBroadcaster_DialsResolvedAddr(t *testing.T) {
	var raddr *net.UDPAddr
	b, err := newBroadcaster("127.0.0.1:4555", fakeDial(&fakeConn{}, &raddr))
	if err != nil {
		t.Fatalf("newBroadcaster: %v", err)
	}
	defer b.Close()
	if raddr == nil || raddr.Port != 4555 || !raddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4555", raddr)
	}
	if b.Dest() != "127.0.0.1:4555" {
		t.Fatalf("dest=%q", b.Dest())
	}
}

func TestNewBroadcaster_Errors(t *testing.T) {
	if _, err := newBroadcaster("no-port", fakeDial(&fakeConn{}, nil)); err == nil || !strings.HasPrefix(err.Error(), "udp: resolve") {
		t.Fatalf("resolve err=%v", err)
	}
	dialErr := errors.New("refused")
	_, err := newBroadcaster("127.0.0.1:4555", func(*net.UDPAddr) (udpConn, error) { return nil, dialErr })
	if !errors.Is(err, dialErr) {
		t.Fatalf("dial err=%v", err)
	}
}

func TestBroadcaster_SendCountsResults(t *testing.T) {
	fc := &fakeConn{}
	b, err := newBroadcaster("127.0.0.1:4555", fakeDial(fc, nil))
	if err != nil {
		t.Fatalf("newBroadcaster: %v", err)
	}

	if err := b.Send(nil); err != nil {
		t.Fatalf("Send(nil): %v", err)
	}
	if err := b.Send([]byte(`{"angle_deg":12.5}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fc.writes) != 1 || string(fc.writes[0]) != `{"angle_deg":12.5}` {
		t.Fatalf("writes=%q", fc.writes)
	}

	fc.writeErr = errors.New("boom")
	if err := b.Send([]byte{0x01}); !errors.Is(err, fc.writeErr) {
		t.Fatalf("err=%v", err)
	}
	snap := b.Snapshot()
	if snap.Sent != 1 || snap.Errors != 1 || snap.LastError != "boom" || snap.LastSentAt.IsZero() {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestBroadcaster_CloseIsIdempotent(t *testing.T) {
	fc := &fakeConn{}
	b, err := newBroadcaster("127.0.0.1:4555", fakeDial(fc, nil))
	if err != nil {
		t.Fatalf("newBroadcaster: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fc.closed != 1 {
		t.Fatalf("closed=%d want 1", fc.closed)
	}
	if err := b.Send([]byte("x")); err == nil {
		t.Fatalf("expected send after close to fail")
	}
}
