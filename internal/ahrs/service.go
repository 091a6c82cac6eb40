// Package ahrs reads the ICM-20948 over I2C and delivers accelerometer and
// magnetometer events to a session.
package ahrs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"locaty/internal/i2c"
	"locaty/internal/sensors"
	"locaty/internal/sensors/icm20948"
)

const standardGravity = 9.80665 // m/s^2 per g

type Config struct {
	I2CBus   int
	IMUAddr  uint16
	MagAddr  uint16
	Interval time.Duration
}

type Snapshot struct {
	IMUDetected  bool      `json:"imu_detected"`
	Samples      uint64    `json:"samples"`
	MagOverflows uint64    `json:"mag_overflows"`
	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

type reader interface {
	Read() (icm20948.Sample, error)
}

// openIMU opens the bus and probes the device. Replaced in tests.
var openIMU = func(cfg Config) (reader, io.Closer, error) {
	bus, err := i2c.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, nil, err
	}
	imu, err := icm20948.New(bus.Dev(cfg.IMUAddr), bus.Dev(cfg.MagAddr))
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("imu init: %w", err)
	}
	return imu, bus, nil
}

// Service is a sensors.Source backed by the IMU. The bus is opened on Start
// and released on Close, so a stopped session does not hold the device.
type Service struct {
	cfg Config

	mu   sync.RWMutex
	snap Snapshot

	loop sensors.Loop
}

func New(cfg Config) *Service {
	if cfg.I2CBus == 0 {
		cfg.I2CBus = 1
	}
	if cfg.IMUAddr == 0 {
		cfg.IMUAddr = icm20948.DefaultAddress()
	}
	if cfg.MagAddr == 0 {
		cfg.MagAddr = icm20948.DefaultMagAddress()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond // 50 Hz
	}
	s := &Service{cfg: cfg}
	s.loop = sensors.Loop{Name: "ahrs", Run: s.run}
	return s
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) Start(ctx context.Context, sink sensors.Sink) error {
	if s == nil {
		return fmt.Errorf("ahrs: service is nil")
	}
	return s.loop.Start(ctx, sink)
}

func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	return s.loop.Close()
}

func (s *Service) run(ctx context.Context, emit sensors.Sink) error {
	imu, closer, err := openIMU(s.cfg)
	if err != nil {
		s.setErr(err.Error())
		return fmt.Errorf("ahrs: %w", err)
	}
	defer closer.Close()

	s.mu.Lock()
	s.snap.IMUDetected = true
	s.snap.LastError = ""
	s.mu.Unlock()

	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		sample, err := imu.Read()
		if err != nil {
			s.setErr(err.Error())
			continue
		}
		at := sample.Time.UTC()
		emit(sensors.Event{
			Kind:   sensors.KindAccelerometer,
			Values: [3]float64{sample.Ax * standardGravity, sample.Ay * standardGravity, sample.Az * standardGravity},
			At:     at,
		})
		if sample.MagValid {
			emit(sensors.Event{
				Kind:   sensors.KindMagnetometer,
				Values: [3]float64{sample.Mx, sample.My, sample.Mz},
				At:     at,
			})
		}

		s.mu.Lock()
		s.snap.Samples++
		if !sample.MagValid {
			s.snap.MagOverflows++
		}
		s.snap.LastUpdateAt = at
		s.snap.LastError = ""
		s.mu.Unlock()
	}
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.LastUpdateAt = time.Now().UTC()
}
