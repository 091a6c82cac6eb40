package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"locaty/internal/ahrs"
	"locaty/internal/button"
	"locaty/internal/config"
	"locaty/internal/notify"
	"locaty/internal/replay"
	"locaty/internal/sensors"
	"locaty/internal/session"
	"locaty/internal/sim"
	"locaty/internal/udp"
	"locaty/internal/web"
)

// runtime owns everything wired around one session controller.
type runtime struct {
	cfg      config.Config
	status   *web.Status
	ctl      *session.Controller
	presence *web.Presence

	ahrsSvc  *ahrs.Service
	button   *button.Service
	mqtt     *notify.MQTT
	udpOut   *udp.Broadcaster
	recorder *replay.Writer
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	r := &runtime{cfg: c, status: web.NewStatus()}

	src, err := r.buildSource(time.Now())
	if err != nil {
		return nil, err
	}

	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		log.Printf("recording sensor events to %s", c.Record.Path)
		r.recorder = w
		src = &replay.RecordingSource{Source: src, Writer: w}
	}

	notifiers := notify.Multi{notify.NewLog(nil)}
	if m := c.Notify.MQTT; m.Enable {
		mq, err := dialMQTT(notify.MQTTConfig{
			Broker:      m.Broker,
			ClientID:    m.ClientID,
			TopicPrefix: m.TopicPrefix,
			QoS:         byte(m.QoS),
			Timeout:     m.Timeout,
		})
		if err != nil {
			// Keep running with log notifications only.
			log.Printf("mqtt init failed: %v", err)
		} else {
			r.mqtt = mq
			notifiers = append(notifiers, mq)
		}
	}

	r.ctl = session.New(session.Config{
		NotificationID: c.Session.NotificationID,
		Title:          c.Session.Title,
	}, src, notifiers)
	r.presence = web.NewPresence(r.ctl, r.ctl)

	if r.mqtt != nil {
		// Handlers run on the MQTT client's goroutine and must not block it.
		if err := r.mqtt.OnAction(func(a session.Action) { go r.handleAction("mqtt", a) }); err != nil {
			log.Printf("mqtt action subscribe failed: %v", err)
		}
	}

	if c.Button.Enable {
		r.button = button.New(button.Config{
			Enable:         true,
			Pin:            c.Button.Pin,
			Debounce:       c.Button.Debounce,
			NotificationID: c.Session.NotificationID,
		}, func(a session.Action) error { return r.ctl.HandleAction(a) })
		if err := r.button.Start(); err != nil {
			// Keep running even if the button line is unavailable.
			log.Printf("button init failed: %v", err)
		}
	}

	if c.UDP.Enable {
		b, err := udp.NewBroadcaster(c.UDP.Dest)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.udpOut = b
		log.Printf("udp output dest=%s", c.UDP.Dest)
		go udp.Forward(ctx, r.ctl, b)
	}

	r.registerStatus()
	return r, nil
}

// dialMQTT is replaced in tests.
var dialMQTT = notify.DialMQTT

func (r *runtime) buildSource(now time.Time) (sensors.Source, error) {
	c := r.cfg.Source
	switch c.Kind {
	case config.SourceIMU:
		r.ahrsSvc = ahrs.New(ahrs.Config{
			I2CBus:   c.IMU.I2CBus,
			IMUAddr:  c.IMU.IMUAddr,
			MagAddr:  c.IMU.MagAddr,
			Interval: c.IMU.Interval,
		})
		return r.ahrsSvc, nil
	case config.SourceReplay:
		return replay.NewSource(replay.SourceConfig{
			Path:  c.Replay.Path,
			Speed: c.Replay.Speed,
			Loop:  c.Replay.Loop,
		}), nil
	case config.SourceSim:
		dev := sim.DeviceSim{
			Period:       c.Sim.Period,
			HorizontalUT: c.Sim.HorizontalUT,
			VerticalUT:   c.Sim.VerticalUT,
		}
		var headingFn sim.HeadingFunc
		if c.Sim.Scenario != "" {
			script, err := sim.LoadScenarioScript(c.Sim.Scenario)
			if err != nil {
				return nil, fmt.Errorf("sim scenario %s: %w", c.Sim.Scenario, err)
			}
			headingFn = script.HeadingFunc(now)
		}
		return sim.Source(dev, headingFn, c.Sim.Interval), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", c.Kind)
	}
}

func (r *runtime) registerStatus() {
	info := map[string]any{
		"notification_id": r.cfg.Session.NotificationID,
		"record":          r.cfg.Record.Enable,
		"mqtt":            r.mqtt != nil,
		"udp_dest":        "",
	}
	switch r.cfg.Source.Kind {
	case config.SourceSim:
		info["sim_period"] = r.cfg.Source.Sim.Period.String()
		info["sim_scenario"] = r.cfg.Source.Sim.Scenario
	case config.SourceReplay:
		info["replay_path"] = r.cfg.Source.Replay.Path
	}
	if r.udpOut != nil {
		info["udp_dest"] = r.udpOut.Dest()
	}
	r.status.SetStatic(r.cfg.Source.Kind, info)

	if r.ahrsSvc != nil {
		r.status.AddComponent("ahrs", func() any { return r.ahrsSvc.Snapshot() })
	}
	if r.button != nil {
		r.status.AddComponent("button", func() any { return r.button.Snapshot() })
	}
	if r.udpOut != nil {
		r.status.AddComponent("udp", func() any { return r.udpOut.Snapshot() })
	}
	if r.cfg.Record.Enable {
		r.status.SetDiskPath(filepath.Dir(r.cfg.Record.Path))
	}
}

func (r *runtime) startSession(ctx context.Context) error {
	if err := r.ctl.Start(ctx); err != nil {
		return err
	}
	r.presence.Sync()
	return nil
}

func (r *runtime) handleAction(from string, a session.Action) {
	if err := r.ctl.HandleAction(a); err != nil {
		log.Printf("%s action %q failed: %v", from, a.Name, err)
	}
}

// watchStops logs every externally requested stop until ctx is done.
func (r *runtime) watchStops(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctl.Started():
		}
		// An external stop re-arms Started under the same lock that closes
		// StopRequested, so each stop is logged once.
		select {
		case <-ctx.Done():
			return
		case <-r.ctl.StopRequested():
			log.Printf("session stopped by user action")
		}
	}
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.ctl != nil {
		if err := r.ctl.Stop(); err != nil {
			log.Printf("session stop: %v", err)
		}
	}
	if r.button != nil {
		_ = r.button.Close()
	}
	if r.mqtt != nil {
		r.mqtt.Close()
	}
	if r.udpOut != nil {
		_ = r.udpOut.Close()
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			log.Printf("record close: %v", err)
		}
	}
}
