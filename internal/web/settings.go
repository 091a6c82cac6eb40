package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"locaty/internal/config"
)

// SettingsPayload is the subset of the config editable from the UI.
type SettingsPayload struct {
	SourceKind   string `json:"source_kind"`
	SimPeriod    string `json:"sim_period"`
	SessionTitle string `json:"session_title"`
	UDPDest      string `json:"udp_dest"`
}

// SettingsPayloadIn is the POST body. Every key is required and none may be
// null; an empty udp_dest disables UDP output.
type SettingsPayloadIn struct {
	SourceKind   *string `json:"source_kind"`
	SimPeriod    *string `json:"sim_period"`
	SessionTitle *string `json:"session_title"`
	UDPDest      *string `json:"udp_dest"`
}

// settingsFields applies one validated key to a config.
var settingsFields = map[string]func(cfg *config.Config, v string) error{
	"source_kind": func(cfg *config.Config, v string) error {
		if v == "" {
			return errors.New("source_kind must be non-empty")
		}
		cfg.Source.Kind = strings.ToLower(v)
		return nil
	},
	"sim_period": func(cfg *config.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid sim_period %q: %w", v, err)
		}
		if d <= 0 {
			return errors.New("sim_period must be > 0")
		}
		cfg.Source.Sim.Period = d
		return nil
	},
	"session_title": func(cfg *config.Config, v string) error {
		if v == "" {
			return errors.New("session_title must be non-empty")
		}
		cfg.Session.Title = v
		return nil
	},
	"udp_dest": func(cfg *config.Config, v string) error {
		cfg.UDP.Enable = v != ""
		cfg.UDP.Dest = v
		return nil
	},
}

func (p SettingsPayloadIn) values() map[string]*string {
	return map[string]*string{
		"source_kind":   p.SourceKind,
		"sim_period":    p.SimPeriod,
		"session_title": p.SessionTitle,
		"udp_dest":      p.UDPDest,
	}
}

// decodeSettingsPayloadInStrict rejects unknown, duplicate, missing and null
// keys as well as trailing data.
func decodeSettingsPayloadInStrict(body []byte) (SettingsPayloadIn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return SettingsPayloadIn{}, errors.New("invalid json: expected object")
	}
	seen := make(map[string]bool, len(settingsFields))
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		key, _ := kt.(string)
		if _, ok := settingsFields[key]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: unknown key %q", key)
		}
		if seen[key] {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = true
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return SettingsPayloadIn{}, errors.New("invalid json: expected end of object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}

	var out SettingsPayloadIn
	if err := json.Unmarshal(body, &out); err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	for key, v := range out.values() {
		if v == nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: missing required key %q", key)
		}
	}
	return out, nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	p := SettingsPayload{
		SourceKind:   cfg.Source.Kind,
		SimPeriod:    cfg.Source.Sim.Period.String(),
		SessionTitle: cfg.Session.Title,
	}
	if cfg.UDP.Enable {
		p.UDPDest = cfg.UDP.Dest
	}
	return p
}

func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	for key, v := range p.values() {
		if v == nil {
			return fmt.Errorf("%s is required", key)
		}
		if err := settingsFields[key](cfg, strings.TrimSpace(*v)); err != nil {
			return err
		}
	}
	return config.DefaultAndValidate(cfg)
}

// SettingsStore reads and writes the daemon config file behind
// /api/settings. Without Apply, changes take effect on the next start.
type SettingsStore struct {
	ConfigPath string
	// Apply runs after validation and before saving; an error aborts the save.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) load() (config.Config, error) {
	return config.Load(s.ConfigPath)
}

// save replaces the config file through a temp file in the same directory so
// a power cut never leaves a truncated config.
func (s SettingsStore) save(cfg config.Config) error {
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.ConfigPath), filepath.Base(s.ConfigPath)+".tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(b)
	if err == nil {
		err = tmp.Sync()
	}
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.ConfigPath)
}

func (s SettingsStore) update(body []byte) (config.Config, int, error) {
	p, err := decodeSettingsPayloadInStrict(body)
	if err != nil {
		return config.Config{}, http.StatusBadRequest, err
	}
	old, err := s.load()
	if err != nil {
		return config.Config{}, http.StatusInternalServerError, fmt.Errorf("load failed: %w", err)
	}
	cfg := old
	if err := applySettingsPayload(&cfg, p); err != nil {
		return config.Config{}, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err)
	}
	if s.Apply != nil {
		if err := s.Apply(cfg); err != nil {
			return config.Config{}, http.StatusBadRequest, fmt.Errorf("apply failed: %w", err)
		}
	}
	if err := s.save(cfg); err != nil {
		// Keep the running daemon consistent with what is on disk.
		if s.Apply != nil {
			_ = s.Apply(old)
		}
		return config.Config{}, http.StatusInternalServerError, fmt.Errorf("save failed: %w", err)
	}
	return cfg, http.StatusOK, nil
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}
		switch r.Method {
		case http.MethodGet:
			cfg, err := s.load()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, configToSettingsPayload(cfg))
		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
			if err != nil {
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			cfg, code, err := s.update(body)
			if err != nil {
				http.Error(w, err.Error(), code)
				return
			}
			writeJSON(w, http.StatusOK, configToSettingsPayload(cfg))
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
