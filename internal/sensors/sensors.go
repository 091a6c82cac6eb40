// Package sensors defines the raw vector events that sources deliver.
package sensors

import (
	"context"
	"fmt"
	"time"
)

type Kind int

const (
	KindAccelerometer Kind = iota + 1
	KindMagnetometer
)

func (k Kind) String() string {
	switch k {
	case KindAccelerometer:
		return "accel"
	case KindMagnetometer:
		return "mag"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "accel":
		return KindAccelerometer, nil
	case "mag":
		return KindMagnetometer, nil
	}
	return 0, fmt.Errorf("sensors: unknown kind %q", s)
}

// Event is one hardware callback.
//
// Accelerometer values are m/s^2 (gravity included), magnetometer values are uT.
type Event struct {
	Kind   Kind
	Values [3]float64
	At     time.Time
}

// Sink receives events. Sources call it from their own goroutine.
type Sink func(Event)

// Source is a pair of accelerometer and magnetometer streams.
//
// Start registers the sink and begins delivery. Close unregisters it; after
// Close returns the sink is not called again. Close is safe to call more
// than once, and Start may be called again after Close.
type Source interface {
	Start(ctx context.Context, sink Sink) error
	Close() error
}
