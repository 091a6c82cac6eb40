package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLogBuffer_PartialLinesAndTrim(t *testing.T) {
	b := NewLogBuffer(2)
	_, _ = b.Write([]byte("2026/10/17 10:00:00 session: started id=a\n2026/10/17 10:00:01 notify: [1] Locaty: "))
	_, _ = b.Write([]byte("Heading not available\n"))
	_, _ = b.Write([]byte("2026/10/17 10:00:02 session: stopped id=a\n"))

	lines, dropped := b.Snapshot(10, "")
	if dropped != 1 || len(lines) != 2 {
		t.Fatalf("lines=%v dropped=%d", lines, dropped)
	}
	if lines[0] != "2026/10/17 10:00:01 notify: [1] Locaty: Heading not available" {
		t.Fatalf("joined line=%q", lines[0])
	}
}

func TestLogBuffer_ComponentFilter(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("10:00 session: started\n10:01 udp: send: refused\nsession: stopped\n"))

	lines, _ := b.Snapshot(10, "session")
	if !reflect.DeepEqual(lines, []string{"10:00 session: started", "session: stopped"}) {
		t.Fatalf("lines=%v", lines)
	}

	ts := httptest.NewServer(b.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/logs?component=udp&tail=5")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer resp.Body.Close()
	var out LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Lines) != 1 || out.Lines[0] != "10:01 udp: send: refused" {
		t.Fatalf("lines=%v", out.Lines)
	}

	bad, err := http.Get(ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", bad.StatusCode)
	}
}

func TestLogBuffer_TextFormat(t *testing.T) {
	b := NewLogBuffer(1)
	_, _ = b.Write([]byte("a: one\nb: two\nc: pending"))

	req := httptest.NewRequest(http.MethodGet, "/api/logs?format=text", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	if got, want := rec.Body.String(), "[dropped=1]\nb: two\n"; got != want {
		t.Fatalf("body=%q want %q", got, want)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}
