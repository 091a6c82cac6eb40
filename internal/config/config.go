package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceSim    = "sim"
	SourceIMU    = "imu"
	SourceReplay = "replay"
)

type Config struct {
	Web     WebConfig     `yaml:"web"`
	Source  SourceConfig  `yaml:"source"`
	Record  RecordConfig  `yaml:"record"`
	Notify  NotifyConfig  `yaml:"notify"`
	Button  ButtonConfig  `yaml:"button"`
	UDP     UDPConfig     `yaml:"udp"`
	Session SessionConfig `yaml:"session"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type SourceConfig struct {
	Kind   string       `yaml:"kind"`
	IMU    IMUConfig    `yaml:"imu"`
	Sim    SimConfig    `yaml:"sim"`
	Replay ReplayConfig `yaml:"replay"`
}

type IMUConfig struct {
	I2CBus   int           `yaml:"i2c_bus"`
	IMUAddr  uint16        `yaml:"imu_addr"`
	MagAddr  uint16        `yaml:"mag_addr"`
	Interval time.Duration `yaml:"interval"`
}

type SimConfig struct {
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
	HorizontalUT float64       `yaml:"horizontal_ut"`
	VerticalUT   float64       `yaml:"vertical_ut"`
	// Scenario is an optional heading script; it overrides Period.
	Scenario string `yaml:"scenario"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type NotifyConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Enable      bool          `yaml:"enable"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         int           `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ButtonConfig struct {
	Enable   bool          `yaml:"enable"`
	Pin      int           `yaml:"pin"`
	Debounce time.Duration `yaml:"debounce"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type SessionConfig struct {
	NotificationID int    `yaml:"notification_id"`
	Title          string `yaml:"title"`
	// Autostart begins a session at launch instead of waiting for
	// POST /api/session/start.
	Autostart bool `yaml:"autostart"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", stripLineNumbers(te.Errors))
		}
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func stripLineNumbers(errs []string) string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.HasPrefix(e, "line ") {
			if i := strings.Index(e, ": "); i >= 0 {
				e = e[i+2:]
			}
		}
		out = append(out, e)
	}
	return strings.Join(out, "; ")
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceSim
	}
	switch cfg.Source.Kind {
	case SourceSim, SourceIMU, SourceReplay:
	default:
		return fmt.Errorf("source.kind must be one of sim, imu, replay (got %q)", cfg.Source.Kind)
	}

	// IMU defaults (safe even if unused).
	if cfg.Source.IMU.I2CBus == 0 {
		cfg.Source.IMU.I2CBus = 1
	}
	if cfg.Source.IMU.IMUAddr == 0 {
		cfg.Source.IMU.IMUAddr = 0x68
	}
	if cfg.Source.IMU.MagAddr == 0 {
		cfg.Source.IMU.MagAddr = 0x0C
	}
	if cfg.Source.IMU.Interval <= 0 {
		cfg.Source.IMU.Interval = 20 * time.Millisecond
	}

	// Simulator defaults.
	if cfg.Source.Sim.Period <= 0 {
		cfg.Source.Sim.Period = 60 * time.Second
	}
	if cfg.Source.Sim.Interval <= 0 {
		cfg.Source.Sim.Interval = 100 * time.Millisecond
	}
	if cfg.Source.Sim.HorizontalUT <= 0 {
		cfg.Source.Sim.HorizontalUT = 22
	}
	if cfg.Source.Sim.VerticalUT == 0 {
		cfg.Source.Sim.VerticalUT = 40
	}

	if cfg.Source.Kind == SourceReplay {
		if cfg.Source.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required when source.kind is replay")
		}
		if cfg.Source.Replay.Speed == 0 {
			cfg.Source.Replay.Speed = 1
		}
		if cfg.Source.Replay.Speed < 0 {
			return fmt.Errorf("source.replay.speed must be > 0")
		}
	}

	if cfg.Record.Enable {
		if cfg.Record.Path == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
		if cfg.Source.Kind == SourceReplay {
			return fmt.Errorf("record cannot be used with source.kind=replay")
		}
	}

	if m := &cfg.Notify.MQTT; m.Enable {
		if m.Broker == "" {
			return fmt.Errorf("notify.mqtt.broker is required when notify.mqtt.enable is true")
		}
		if m.QoS < 0 || m.QoS > 2 {
			return fmt.Errorf("notify.mqtt.qos must be 0, 1 or 2")
		}
		if m.TopicPrefix == "" {
			m.TopicPrefix = "locaty"
		}
		if m.Timeout <= 0 {
			m.Timeout = 5 * time.Second
		}
	}

	if cfg.Button.Pin == 0 {
		cfg.Button.Pin = 17
	}
	if cfg.Button.Pin < 0 {
		return fmt.Errorf("button.pin must be >= 0")
	}
	if cfg.Button.Debounce <= 0 {
		cfg.Button.Debounce = 50 * time.Millisecond
	}

	if cfg.UDP.Enable && cfg.UDP.Dest == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if cfg.Session.NotificationID < 0 {
		return fmt.Errorf("session.notification_id must be >= 0")
	}
	if cfg.Session.NotificationID == 0 {
		cfg.Session.NotificationID = 1
	}
	if cfg.Session.Title == "" {
		cfg.Session.Title = "Locaty"
	}
	cfg.Session.Title = strings.TrimSpace(cfg.Session.Title)

	return nil
}
