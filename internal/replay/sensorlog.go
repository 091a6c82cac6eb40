package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"locaty/internal/sensors"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<kind>,<x>,<y>,<z>
//   where t_ns is nanoseconds since START, kind is "accel" or "mag", and
//   x,y,z are the raw vector in m/s^2 or uT.

type Record struct {
	At     time.Duration
	Start  bool
	Kind   sensors.Kind
	Values [3]float64
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Record{}, fmt.Errorf("want 5 fields, got %d: %q", len(fields), line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	tsNs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid timestamp (negative): %d", tsNs)
	}
	kind, err := sensors.ParseKind(fields[1])
	if err != nil {
		return Record{}, err
	}
	var v [3]float64
	for i := 0; i < 3; i++ {
		v[i], err = strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid value %q: %w", fields[2+i], err)
		}
	}
	return Record{At: time.Duration(tsNs), Kind: kind, Values: v}, nil
}

// ReadFile loads a whole log.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) WriteEvent(now time.Time, ev sensors.Event) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if ev.Kind != sensors.KindAccelerometer && ev.Kind != sensors.KindMagnetometer {
		return fmt.Errorf("replay: unsupported kind %v", ev.Kind)
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s,%s,%s,%s\n", d.Nanoseconds(), ev.Kind,
		formatFloat(ev.Values[0]), formatFloat(ev.Values[1]), formatFloat(ev.Values[2]))
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Play feeds data records to cb with their recorded spacing divided by speed.
// A START marker begins a new segment, so no wait is inserted across it.
// Play returns nil when ctx is cancelled.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, cb func(Record) error) error {
	switch {
	case speed <= 0:
		return fmt.Errorf("replay: speed must be > 0")
	case cb == nil:
		return errors.New("replay: callback is nil")
	case !hasData(records):
		return errors.New("replay: no records")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	for {
		prev := time.Duration(-1)
		for _, r := range records {
			if ctx.Err() != nil {
				return nil
			}
			if r.Start {
				prev = -1
				continue
			}
			if prev >= 0 && r.At > prev {
				wait := time.Duration(float64(r.At-prev) / speed)
				if wait > 0 && sleeper.Sleep(ctx, wait) != nil {
					return nil
				}
			}
			if err := cb(r); err != nil {
				return err
			}
			prev = r.At
		}
		if !loop {
			return nil
		}
	}
}

func hasData(records []Record) bool {
	for _, r := range records {
		if !r.Start {
			return true
		}
	}
	return false
}
