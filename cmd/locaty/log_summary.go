package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"locaty/internal/heading"
	"locaty/internal/replay"
	"locaty/internal/sensors"
)

type logSummary struct {
	Segments    int
	Events      int
	Accel       int
	Mag         int
	MaxDuration time.Duration
	// Headings computed by replaying the events through the calculator.
	Available   int
	Degenerate  int
	Directions  map[heading.Direction]int
	LastHeading heading.Result
}

func summarizeSensorLog(records []replay.Record) logSummary {
	s := logSummary{Directions: map[heading.Direction]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasEvents := false
	segments := 0
	var reading heading.Reading

	for _, r := range records {
		if r.Start {
			segments++
			origin = r.At
			reading.Reset()
			continue
		}
		hasEvents = true

		s.Events++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		switch r.Kind {
		case sensors.KindAccelerometer:
			s.Accel++
			reading.SetAccel(r.Values)
		case sensors.KindMagnetometer:
			s.Mag++
			reading.SetMag(r.Values)
		}
		if !reading.HaveAccel || !reading.HaveMag {
			continue
		}
		res := heading.Compute(reading)
		if !res.Available {
			s.Degenerate++
			continue
		}
		s.Available++
		s.Directions[res.Direction]++
		s.LastHeading = res
	}
	if segments == 0 && hasEvents {
		segments = 1
	}
	s.Segments = segments
	return s
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}

	s := summarizeSensorLog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "events: %d (accel=%d mag=%d)\n", s.Events, s.Accel, s.Mag)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "headings: %d (degenerate=%d)\n", s.Available, s.Degenerate)
	fmt.Fprintf(w, "last_heading: %s\n", s.LastHeading)
	fmt.Fprintf(w, "direction_counts:\n")
	for _, d := range heading.Directions {
		if n := s.Directions[d]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", d, n)
		}
	}
	return nil
}
