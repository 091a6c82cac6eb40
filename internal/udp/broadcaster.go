// Package udp sends heading results as JSON datagrams to a fixed address.
package udp

import (
	"fmt"
	"net"
	"sync"
	"time"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type dialFunc func(raddr *net.UDPAddr) (udpConn, error)

// Snapshot is reported under "udp" in /api/status.
type Snapshot struct {
	Dest       string    `json:"dest"`
	Sent       uint64    `json:"sent"`
	Errors     uint64    `json:"errors"`
	LastSentAt time.Time `json:"last_sent_utc,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Broadcaster owns one connected UDP socket. Send is safe for concurrent use.
type Broadcaster struct {
	mu   sync.Mutex
	conn udpConn
	snap Snapshot
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, func(raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP("udp", nil, raddr)
	})
}

func newBroadcaster(dest string, dial dialFunc) (*Broadcaster, error) {
	raddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	conn, err := dial(raddr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", dest, err)
	}
	return &Broadcaster{conn: conn, snap: Snapshot{Dest: dest}}, nil
}

func (b *Broadcaster) Dest() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.Dest
}

func (b *Broadcaster) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Send writes one datagram. Empty payloads are skipped.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("udp: %s is closed", b.snap.Dest)
	}
	if _, err := b.conn.Write(payload); err != nil {
		b.snap.Errors++
		b.snap.LastError = err.Error()
		return err
	}
	b.snap.Sent++
	b.snap.LastSentAt = time.Now().UTC()
	return nil
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
