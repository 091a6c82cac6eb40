package replay

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"locaty/internal/sensors"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	fs.slept = append(fs.slept, d)
	return nil
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0,accel, 0, 0, 9.81
10, mag,0,22,-40
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if !recs[0].Start {
		t.Fatalf("expected START marker, got %+v", recs[0])
	}
	if recs[1].Kind != sensors.KindAccelerometer || recs[1].Values != [3]float64{0, 0, 9.81} {
		t.Fatalf("unexpected record 1: %+v", recs[1])
	}
	if recs[2].At != 10*time.Nanosecond {
		t.Fatalf("expected At=10ns, got %s", recs[2].At)
	}
	if recs[2].Kind != sensors.KindMagnetometer || recs[2].Values != [3]float64{0, 22, -40} {
		t.Fatalf("unexpected record 2: %+v", recs[2])
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	for _, line := range []string{
		"not-a-valid-line",
		"0,accel,1,2",
		"-1,accel,1,2,3",
		"0,gyro,1,2,3",
		"0,mag,1,x,3",
	} {
		if _, err := NewReader(strings.NewReader(line + "\n")).ReadAll(); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 1 * time.Second, Start: true},
		{At: 1 * time.Second, Kind: sensors.KindAccelerometer, Values: [3]float64{1}},
		{At: 1*time.Second + 100*time.Nanosecond, Kind: sensors.KindMagnetometer, Values: [3]float64{2}},
		{At: 2 * time.Second, Start: true},
		{At: 2*time.Second + 50*time.Nanosecond, Kind: sensors.KindAccelerometer, Values: [3]float64{3}},
	}

	var got []float64
	err := Play(context.Background(), recs, 1.0, false, fs, func(r Record) error {
		got = append(got, r.Values[0])
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{1, 2, 3}) {
		t.Fatalf("values = %v", got)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Kind: sensors.KindAccelerometer},
		{At: 100 * time.Nanosecond, Kind: sensors.KindMagnetometer},
	}
	if err := Play(context.Background(), recs, 2.0, false, fs, func(Record) error { return nil }); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidArgs(t *testing.T) {
	recs := []Record{{At: 0, Kind: sensors.KindAccelerometer}}
	if err := Play(context.Background(), recs, 0, false, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for speed")
	}
	if err := Play(context.Background(), []Record{{Start: true}}, 1, false, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for empty log")
	}
}

func TestPlay_LoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recs := []Record{{At: 0, Kind: sensors.KindAccelerometer}}
	n := 0
	err := Play(ctx, recs, 1, true, &fakeSleeper{}, func(Record) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if n != 5 {
		t.Fatalf("callbacks = %d, want 5", n)
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)

	ev := sensors.Event{Kind: sensors.KindMagnetometer, Values: [3]float64{-22, 0.5, -40}}
	if err := w.WriteEvent(time.Unix(0, 20), ev); err != nil {
		t.Fatalf("WriteEvent() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteEvent(time.Unix(0, 30), ev); err == nil {
		t.Fatalf("expected error after Close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,mag,-22,0.5,-40\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}
