package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"locaty/internal/config"
)

func writeTempConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }

func postSettings(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url+"/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/settings error: %v", err)
	}
	return resp
}

func requireUnchanged(t *testing.T, path, original string) {
	t.Helper()
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(onDisk) != original {
		t.Fatalf("expected config unchanged; got: %s", string(onDisk))
	}
}

func TestSettingsGET_ReturnsCurrent(t *testing.T) {
	cfgPath := writeTempConfigFile(t, "source:\n  kind: sim\n  sim:\n    period: 30s\nsession:\n  title: Compass\n")
	ts := httptest.NewServer(SettingsStore{ConfigPath: cfgPath}.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	var got SettingsPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := SettingsPayload{SourceKind: "sim", SimPeriod: "30s", SessionTitle: "Compass"}
	if got != want {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
}

func TestSettingsPOST_AppliesAndSaves(t *testing.T) {
	cfgPath := writeTempConfigFile(t, "source:\n  kind: sim\n")

	appliedCh := make(chan config.Config, 1)
	store := SettingsStore{
		ConfigPath: cfgPath,
		Apply: func(cfg config.Config) error {
			appliedCh <- cfg
			return nil
		},
	}
	ts := httptest.NewServer(store.Handler())
	defer ts.Close()

	payload := SettingsPayloadIn{
		SourceKind:   strPtr("IMU"),
		SimPeriod:    strPtr("250ms"),
		SessionTitle: strPtr(" Compass "),
		UDPDest:      strPtr("127.0.0.1:5000"),
	}
	b, _ := json.Marshal(payload)
	resp := postSettings(t, ts.URL, b)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s", resp.StatusCode, string(body))
	}

	select {
	case got := <-appliedCh:
		if got.Source.Kind != config.SourceIMU {
			t.Fatalf("applied kind=%q", got.Source.Kind)
		}
		if got.Source.Sim.Period != 250*time.Millisecond {
			t.Fatalf("applied period=%s", got.Source.Sim.Period)
		}
		if got.Session.Title != "Compass" {
			t.Fatalf("applied title=%q", got.Session.Title)
		}
		if !got.UDP.Enable || got.UDP.Dest != "127.0.0.1:5000" {
			t.Fatalf("applied udp=%+v", got.UDP)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for Apply")
	}

	onDisk, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	text := string(onDisk)
	if !strings.Contains(text, "127.0.0.1:5000") {
		t.Fatalf("expected saved dest in yaml, got: %s", text)
	}
	if !strings.Contains(text, "250ms") {
		t.Fatalf("expected saved period in yaml, got: %s", text)
	}
	if _, err := config.Load(cfgPath); err != nil {
		t.Fatalf("saved config does not load: %v", err)
	}
}

func TestSettingsPOST_ApplyFailureDoesNotSave(t *testing.T) {
	original := "source:\n  kind: sim\n"
	cfgPath := writeTempConfigFile(t, original)

	store := SettingsStore{
		ConfigPath: cfgPath,
		Apply:      func(cfg config.Config) error { return errors.New("boom") },
	}
	ts := httptest.NewServer(store.Handler())
	defer ts.Close()

	b, _ := json.Marshal(SettingsPayloadIn{
		SourceKind:   strPtr("sim"),
		SimPeriod:    strPtr("2s"),
		SessionTitle: strPtr("Locaty"),
		UDPDest:      strPtr(""),
	})
	resp := postSettings(t, ts.URL, b)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s", resp.StatusCode, string(body))
	}
	requireUnchanged(t, cfgPath, original)
}

func TestSettingsPOST_InvalidRejected(t *testing.T) {
	cases := map[string]string{
		"MissingPeriod": `{"source_kind":"sim","session_title":"x","udp_dest":""}`,
		"NullTitle":     `{"source_kind":"sim","sim_period":"1s","session_title":null,"udp_dest":""}`,
		"UnknownKey":    `{"source_kind":"sim","sim_period":"1s","session_title":"x","udp_dest":"","extra":1}`,
		"BadKind":       `{"source_kind":"gps","sim_period":"1s","session_title":"x","udp_dest":""}`,
		"BadPeriod":     `{"source_kind":"sim","sim_period":"soon","session_title":"x","udp_dest":""}`,
		"Duplicate":     `{"source_kind":"sim","source_kind":"imu","sim_period":"1s","session_title":"x","udp_dest":""}`,
		"Trailing":      `{"source_kind":"sim","sim_period":"1s","session_title":"x","udp_dest":""} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			original := "source:\n  kind: sim\n"
			cfgPath := writeTempConfigFile(t, original)
			ts := httptest.NewServer(SettingsStore{ConfigPath: cfgPath}.Handler())
			defer ts.Close()

			resp := postSettings(t, ts.URL, []byte(body))
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				b, _ := io.ReadAll(resp.Body)
				t.Fatalf("status=%d body=%s", resp.StatusCode, string(b))
			}
			requireUnchanged(t, cfgPath, original)
		})
	}
}

func TestSettings_NoConfigPath(t *testing.T) {
	ts := httptest.NewServer(SettingsStore{}.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status=%d want 501", resp.StatusCode)
	}
}
