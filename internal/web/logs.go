package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogTail = 200
	maxLogTail     = 5000
)

// LogBuffer keeps the most recent daemon log lines for /api/logs. It sits
// behind log.SetOutput next to stderr.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write splits p into lines. Text after the last newline is held until the
// next write completes it.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	if len(b.partial) > 0 {
		data = append(b.partial, p...)
		b.partial = nil
	}
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(string(data[:i]))
		data = data[i+1:]
	}
	if len(data) > 0 {
		b.partial = append([]byte(nil), data...)
	}
	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
		b.dropped += uint64(over)
	}
}

type LogsResponse struct {
	NowUTC    string   `json:"now_utc"`
	Component string   `json:"component,omitempty"`
	Dropped   uint64   `json:"dropped"`
	Lines     []string `json:"lines"`
}

// Snapshot returns the last tail lines. A non-empty component keeps only
// lines logged as "<component>: ...".
func (b *LogBuffer) Snapshot(tail int, component string) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = defaultLogTail
	}
	// Walk backwards so a filtered tail does not copy the whole buffer.
	for i := len(b.lines) - 1; i >= 0 && len(lines) < tail; i-- {
		if component == "" || hasComponent(b.lines[i], component) {
			lines = append(lines, b.lines[i])
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, b.dropped
}

func hasComponent(line, component string) bool {
	tag := component + ": "
	return strings.HasPrefix(line, tag) || strings.Contains(line, " "+tag)
}

// Handler serves GET /api/logs?tail=N&component=C&format=text.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		tail := defaultLogTail
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > maxLogTail {
				http.Error(w, fmt.Sprintf("tail must be an integer in [1,%d]", maxLogTail), http.StatusBadRequest)
				return
			}
			tail = v
		}
		component := strings.TrimSpace(q.Get("component"))
		lines, dropped := b.Snapshot(tail, component)

		w.Header().Set("Cache-Control", "no-store")
		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			_, _ = fmt.Fprint(w, strings.Join(lines, "\n"))
			if len(lines) > 0 {
				_, _ = fmt.Fprintln(w)
			}
			return
		}
		if lines == nil {
			lines = []string{}
		}
		writeJSON(w, http.StatusOK, LogsResponse{
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			Component: component,
			Dropped:   dropped,
			Lines:     lines,
		})
	})
}
