package sim

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScenarioScript is a deterministic heading profile.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	loop: true
//	keyframes:
//	  - t: 0s
//	    heading_deg: 0
//	  - t: 10s
//	    heading_deg: 350
//
// Headings are interpolated along the shorter arc, so the example above
// turns 10 degrees counter-clockwise through north. If Duration is zero it
// is the time of the last keyframe.
type ScenarioScript struct {
	Version   int               `yaml:"version"`
	Duration  time.Duration     `yaml:"duration"`
	Loop      bool              `yaml:"loop"`
	Keyframes []HeadingKeyframe `yaml:"keyframes"`
}

type HeadingKeyframe struct {
	T          time.Duration `yaml:"t"`
	HeadingDeg float64       `yaml:"heading_deg"`
}

func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScript(b)
}

func ParseScenarioScript(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, fmt.Errorf("sim: parse scenario: %w", err)
	}
	if s.Version != 1 {
		return ScenarioScript{}, fmt.Errorf("sim: unsupported scenario version %d", s.Version)
	}
	if len(s.Keyframes) == 0 {
		return ScenarioScript{}, fmt.Errorf("sim: scenario has no keyframes")
	}
	for i, k := range s.Keyframes {
		if k.T < 0 {
			return ScenarioScript{}, fmt.Errorf("sim: keyframe %d has negative t", i)
		}
		if i > 0 && k.T < s.Keyframes[i-1].T {
			return ScenarioScript{}, fmt.Errorf("sim: keyframes must be sorted by t (index %d)", i)
		}
		if math.IsNaN(k.HeadingDeg) || math.IsInf(k.HeadingDeg, 0) {
			return ScenarioScript{}, fmt.Errorf("sim: keyframe %d heading is not finite", i)
		}
	}
	last := s.Keyframes[len(s.Keyframes)-1].T
	if s.Duration == 0 {
		s.Duration = last
	}
	if s.Duration < last {
		return ScenarioScript{}, fmt.Errorf("sim: duration %s is shorter than last keyframe %s", s.Duration, last)
	}
	return s, nil
}

// HeadingAt returns the heading at elapsed time since scenario start.
func (s ScenarioScript) HeadingAt(elapsed time.Duration) float64 {
	if len(s.Keyframes) == 0 {
		return 0
	}
	if s.Loop && s.Duration > 0 {
		elapsed %= s.Duration
	}
	if elapsed <= s.Keyframes[0].T {
		return normDeg(s.Keyframes[0].HeadingDeg)
	}
	for i := 1; i < len(s.Keyframes); i++ {
		a, b := s.Keyframes[i-1], s.Keyframes[i]
		if elapsed > b.T {
			continue
		}
		span := b.T - a.T
		if span <= 0 {
			return normDeg(b.HeadingDeg)
		}
		f := float64(elapsed-a.T) / float64(span)
		d := math.Mod(b.HeadingDeg-a.HeadingDeg+540, 360) - 180
		return normDeg(a.HeadingDeg + f*d)
	}
	return normDeg(s.Keyframes[len(s.Keyframes)-1].HeadingDeg)
}

// HeadingFunc anchors the script at start.
func (s ScenarioScript) HeadingFunc(start time.Time) HeadingFunc {
	return func(now time.Time) float64 {
		return s.HeadingAt(now.Sub(start))
	}
}

func normDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
