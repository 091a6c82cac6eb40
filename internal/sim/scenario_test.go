package sim

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScenario_ParseAndInterpolateAngleWrap(t *testing.T) {
	yaml := []byte(`
version: 1
# duration derived from last keyframe
keyframes:
  - t: 0s
    heading_deg: 350
  - t: 10s
    heading_deg: 10
`)
	s, err := ParseScenarioScript(yaml)
	if err != nil {
		t.Fatalf("ParseScenarioScript: %v", err)
	}
	if s.Duration != 10*time.Second {
		t.Fatalf("duration: got %s want %s", s.Duration, 10*time.Second)
	}
	// 350->10 goes +20 through north; halfway is 0.
	if got := s.HeadingAt(5 * time.Second); math.Abs(got) > 1e-9 {
		t.Fatalf("wrap interpolation: got %v want 0", got)
	}
	if got := s.HeadingAt(7500 * time.Millisecond); math.Abs(got-5) > 1e-9 {
		t.Fatalf("got %v want 5", got)
	}
	// Holds last keyframe when not looping.
	if got := s.HeadingAt(time.Minute); got != 10 {
		t.Fatalf("hold: got %v want 10", got)
	}
}

func TestScenario_Loop(t *testing.T) {
	s, err := ParseScenarioScript([]byte(`
version: 1
duration: 20s
loop: true
keyframes:
  - t: 0s
    heading_deg: 0
  - t: 10s
    heading_deg: 100
`))
	if err != nil {
		t.Fatalf("ParseScenarioScript: %v", err)
	}
	if got := s.HeadingAt(25 * time.Second); math.Abs(got-50) > 1e-9 {
		t.Fatalf("loop: got %v want 50", got)
	}
	start := time.Unix(100, 0)
	fn := s.HeadingFunc(start)
	if got := fn(start.Add(15 * time.Second)); got != 100 {
		t.Fatalf("HeadingFunc: got %v want 100", got)
	}
}

func TestScenario_Rejects(t *testing.T) {
	cases := map[string]string{
		"version":  "version: 2\nkeyframes: [{t: 0s, heading_deg: 0}]\n",
		"empty":    "version: 1\n",
		"unsorted": "version: 1\nkeyframes: [{t: 5s, heading_deg: 0}, {t: 1s, heading_deg: 0}]\n",
		"negative": "version: 1\nkeyframes: [{t: -1s, heading_deg: 0}]\n",
		"short":    "version: 1\nduration: 1s\nkeyframes: [{t: 5s, heading_deg: 0}]\n",
		"yaml":     "version: [\n",
	}
	for name, body := range cases {
		if _, err := ParseScenarioScript([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadScenarioScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nkeyframes:\n  - t: 0s\n    heading_deg: -90\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadScenarioScript(path)
	if err != nil {
		t.Fatalf("LoadScenarioScript: %v", err)
	}
	if got := s.HeadingAt(0); got != 270 {
		t.Fatalf("got %v want 270", got)
	}
}
