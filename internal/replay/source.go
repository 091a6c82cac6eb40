package replay

import (
	"context"
	"fmt"
	"log"
	"time"

	"locaty/internal/sensors"
)

// SourceConfig describes a recorded log played back as a live source.
type SourceConfig struct {
	Path  string
	Speed float64
	Loop  bool
}

// NewSource returns a Source that plays the log at Path each time it is
// started. Events are stamped with the wall time they are delivered.
func NewSource(cfg SourceConfig) *sensors.Loop {
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &sensors.Loop{Name: "replay", Run: func(ctx context.Context, emit sensors.Sink) error {
		recs, err := ReadFile(cfg.Path)
		if err != nil {
			return fmt.Errorf("replay: load %s: %w", cfg.Path, err)
		}
		log.Printf("replay: playing %s (%d records, speed=%.2fx loop=%t)", cfg.Path, len(recs), cfg.Speed, cfg.Loop)
		return Play(ctx, recs, cfg.Speed, cfg.Loop, nil, func(r Record) error {
			emit(sensors.Event{Kind: r.Kind, Values: r.Values, At: time.Now().UTC()})
			return nil
		})
	}}
}

// Tap returns a sink that writes every event to w before passing it on.
// Write errors are logged once and recording continues to be attempted.
func Tap(w *Writer, next sensors.Sink) sensors.Sink {
	if w == nil {
		return next
	}
	logged := false
	return func(ev sensors.Event) {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		if err := w.WriteEvent(at, ev); err != nil && !logged {
			logged = true
			log.Printf("replay: record failed: %v", err)
		}
		if next != nil {
			next(ev)
		}
	}
}

// RecordingSource wraps a source so every delivered event is also logged.
type RecordingSource struct {
	Source sensors.Source
	Writer *Writer
}

func (r *RecordingSource) Start(ctx context.Context, sink sensors.Sink) error {
	if r.Source == nil {
		return fmt.Errorf("replay: recording source has no inner source")
	}
	return r.Source.Start(ctx, Tap(r.Writer, sink))
}

// Close stops the inner source and flushes the log. The writer stays open
// so a restarted session keeps appending.
func (r *RecordingSource) Close() error {
	var err error
	if r.Source != nil {
		err = r.Source.Close()
	}
	if r.Writer != nil {
		if ferr := r.Writer.Flush(); err == nil {
			err = ferr
		}
	}
	return err
}
