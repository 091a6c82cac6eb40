package sim

import (
	"context"
	"math"
	"time"

	"locaty/internal/sensors"
)

const gravity = 9.81

// DeviceSim is a device lying flat and turning clockwise at a constant rate.
type DeviceSim struct {
	Period time.Duration
	// Horizontal and vertical (downward) components of the local field in uT.
	HorizontalUT float64
	VerticalUT   float64
}

func (s DeviceSim) withDefaults() DeviceSim {
	if s.Period <= 0 {
		s.Period = 60 * time.Second
	}
	if s.HorizontalUT <= 0 {
		s.HorizontalUT = 22
	}
	if s.VerticalUT == 0 {
		s.VerticalUT = 40
	}
	return s
}

// HeadingAt returns the simulated heading in degrees [0,360).
func (s DeviceSim) HeadingAt(now time.Time) float64 {
	s = s.withDefaults()
	phase := float64(now.UnixNano()%s.Period.Nanoseconds()) / float64(s.Period.Nanoseconds())
	return math.Mod(phase*360, 360)
}

// Vectors returns accelerometer (m/s^2) and magnetometer (uT) readings for a
// flat device facing headingDeg.
func (s DeviceSim) Vectors(headingDeg float64) (accel, mag [3]float64) {
	s = s.withDefaults()
	th := headingDeg * math.Pi / 180
	// Magnetic north expressed in device axes (x right, y forward, z up).
	mag = [3]float64{
		-s.HorizontalUT * math.Sin(th),
		s.HorizontalUT * math.Cos(th),
		-s.VerticalUT,
	}
	accel = [3]float64{0, 0, gravity}
	return accel, mag
}

// HeadingFunc maps wall time to a heading in degrees.
type HeadingFunc func(now time.Time) float64

// Source emits an accelerometer and a magnetometer event every interval
// following heading.
func Source(dev DeviceSim, heading HeadingFunc, interval time.Duration) *sensors.Loop {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if heading == nil {
		heading = dev.HeadingAt
	}
	return &sensors.Loop{Name: "sim", Run: func(ctx context.Context, emit sensors.Sink) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			now := time.Now().UTC()
			accel, mag := dev.Vectors(heading(now))
			emit(sensors.Event{Kind: sensors.KindAccelerometer, Values: accel, At: now})
			emit(sensors.Event{Kind: sensors.KindMagnetometer, Values: mag, At: now})
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
	}}
}
