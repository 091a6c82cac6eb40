package web

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"locaty/internal/heading"
	"locaty/internal/session"
)

type Status struct {
	startUnixNano int64
	source        atomic.Value // string
	info          atomic.Value // map[string]any
	diskPath      atomic.Value // string

	mu         sync.RWMutex
	components map[string]func() any
}

func NewStatus() *Status {
	s := &Status{components: make(map[string]func() any)}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.info.Store(map[string]any{})
	s.diskPath.Store("/")
	return s
}

func (s *Status) SetStatic(source string, info map[string]any) {
	if source != "" {
		s.source.Store(source)
	}
	if info != nil {
		s.info.Store(info)
	}
}

// SetDiskPath selects the filesystem whose free space is reported, normally
// the directory sensor recordings are written to.
func (s *Status) SetDiskPath(path string) {
	if path != "" {
		s.diskPath.Store(path)
	}
}

// AddComponent registers a snapshot function reported under name.
func (s *Status) AddComponent(name string, snapshot func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[name] = snapshot
}

// HeadingPayload is the wire form of a heading result.
type HeadingPayload struct {
	AngleDeg    float64 `json:"angle_deg"`
	Direction   string  `json:"direction"`
	Available   bool    `json:"available"`
	RotationDeg float64 `json:"rotation_deg"`
	Text        string  `json:"text"`
}

func NewHeadingPayload(res heading.Result) HeadingPayload {
	return HeadingPayload{
		AngleDeg:    res.Angle,
		Direction:   string(res.Direction),
		Available:   res.Available,
		RotationDeg: res.Rotation(),
		Text:        res.String(),
	}
}

type SurfaceCounts struct {
	Open    int `json:"open"`
	Visible int `json:"visible"`
}

type StatusSnapshot struct {
	Service    string           `json:"service"`
	NowUTC     string           `json:"now_utc"`
	UptimeSec  int64            `json:"uptime_sec"`
	Source     string           `json:"source"`
	Info       map[string]any   `json:"info"`
	Session    session.Snapshot `json:"session"`
	Heading    HeadingPayload   `json:"heading"`
	Surfaces   SurfaceCounts    `json:"surfaces"`
	Components map[string]any   `json:"components,omitempty"`
	System     *SystemSnapshot  `json:"system,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "locaty",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Source:    s.source.Load().(string),
		Info:      s.info.Load().(map[string]any),
		System:    snapshotSystem(s.diskPath.Load().(string)),
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		snap.Components = make(map[string]any, len(names))
	}
	for _, name := range names {
		snap.Components[name] = s.components[name]()
	}
	s.mu.RUnlock()
	return snap
}
