// Package button turns a momentary push button on a GPIO line into a stop
// action for the running session.
package button

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"locaty/internal/session"
)

type Config struct {
	Enable bool
	// Pin is BCM GPIO numbering. The button pulls the line to ground.
	Pin int
	// Debounce is the minimum time between two accepted presses.
	Debounce time.Duration
	// NotificationID is carried in the stop action.
	NotificationID int
}

type Snapshot struct {
	Enabled     bool      `json:"enabled"`
	Available   bool      `json:"available"`
	Presses     uint64    `json:"presses"`
	LastPressAt time.Time `json:"last_press_utc,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// openLineFn requests the line and calls onPress on every falling edge.
// Replaced in tests.
var openLineFn = openLine

type Service struct {
	cfg    Config
	handle func(session.Action) error

	mu        sync.Mutex
	snap      Snapshot
	lastPress time.Time
	line      io.Closer
}

func New(cfg Config, handle func(session.Action) error) *Service {
	if cfg.Pin == 0 {
		cfg.Pin = 17
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	return &Service{cfg: cfg, handle: handle, snap: Snapshot{Enabled: cfg.Enable}}
}

// Start requests the GPIO line. A disabled service does nothing.
func (s *Service) Start() error {
	if s == nil || !s.cfg.Enable {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line != nil {
		return nil
	}
	line, err := openLineFn(s.cfg.Pin, s.cfg.Debounce, s.press)
	if err != nil {
		s.snap.LastError = err.Error()
		return fmt.Errorf("button: %w", err)
	}
	s.line = line
	s.snap.Available = true
	s.snap.LastError = ""
	log.Printf("button: listening on GPIO%d", s.cfg.Pin)
	return nil
}

func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	line := s.line
	s.line = nil
	s.snap.Available = false
	s.mu.Unlock()
	if line == nil {
		return nil
	}
	return line.Close()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Service) press(at time.Time) {
	s.mu.Lock()
	if !s.lastPress.IsZero() && at.Sub(s.lastPress) < s.cfg.Debounce {
		s.mu.Unlock()
		return
	}
	s.lastPress = at
	s.snap.Presses++
	s.snap.LastPressAt = at.UTC()
	s.mu.Unlock()

	if s.handle == nil {
		return
	}
	if err := s.handle(session.StopAction(s.cfg.NotificationID)); err != nil {
		log.Printf("button: stop failed: %v", err)
		s.mu.Lock()
		s.snap.LastError = err.Error()
		s.mu.Unlock()
	}
}
