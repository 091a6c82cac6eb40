package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"locaty/internal/session"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// mqttClient is the subset of mqtt.Client the notifier uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes notifications as retained JSON messages on
// <prefix>/notification/<id> and listens for actions on <prefix>/action.
// Cancelling publishes an empty retained message, which clears the topic.
type MQTT struct {
	cfg    MQTTConfig
	client mqttClient

	mu       sync.Mutex
	last     map[int]string
	onAction func(session.Action)
}

func applyMQTTDefaults(cfg MQTTConfig) MQTTConfig {
	if cfg.ClientID == "" {
		cfg.ClientID = "locaty-" + uuid.NewString()[:8]
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "locaty"
	}
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg
}

// DialMQTT connects to the broker. The client reconnects on its own after
// the first successful connect.
func DialMQTT(cfg MQTTConfig) (*MQTT, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("notify: mqtt broker is required")
	}
	cfg = applyMQTTDefaults(cfg)

	m := &MQTT{cfg: cfg, last: make(map[int]string)}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetOnConnectHandler(func(mqtt.Client) {
			// Subscriptions do not survive a clean-session reconnect.
			if err := m.subscribe(); err != nil {
				log.Printf("notify: mqtt resubscribe: %v", err)
			}
		})
	client := mqtt.NewClient(opts)
	m.client = client

	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt connect %s: %w", cfg.Broker, err)
	}
	log.Printf("notify: mqtt connected broker=%s client_id=%s", cfg.Broker, cfg.ClientID)
	return m, nil
}

func newMQTTWithClient(cfg MQTTConfig, client mqttClient) *MQTT {
	return &MQTT{cfg: applyMQTTDefaults(cfg), client: client, last: make(map[int]string)}
}

func (m *MQTT) NotificationTopic(id int) string {
	return m.cfg.TopicPrefix + "/notification/" + strconv.Itoa(id)
}

func (m *MQTT) ActionTopic() string {
	return m.cfg.TopicPrefix + "/action"
}

func (m *MQTT) Show(n session.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last[n.ID] == n.Body {
		return nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}
	if err := m.wait(m.client.Publish(m.NotificationTopic(n.ID), m.cfg.QoS, true, b)); err != nil {
		return fmt.Errorf("notify: publish %s: %w", m.NotificationTopic(n.ID), err)
	}
	m.last[n.ID] = n.Body
	return nil
}

func (m *MQTT) Cancel(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.wait(m.client.Publish(m.NotificationTopic(id), m.cfg.QoS, true, []byte{})); err != nil {
		return fmt.Errorf("notify: clear %s: %w", m.NotificationTopic(id), err)
	}
	delete(m.last, id)
	return nil
}

// OnAction subscribes to the action topic and calls fn for every action
// that parses.
func (m *MQTT) OnAction(fn func(session.Action)) error {
	m.mu.Lock()
	m.onAction = fn
	m.mu.Unlock()
	return m.subscribe()
}

func (m *MQTT) subscribe() error {
	m.mu.Lock()
	fn := m.onAction
	m.mu.Unlock()
	if fn == nil || m.client == nil {
		return nil
	}
	return m.wait(m.client.Subscribe(m.ActionTopic(), m.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.dispatch(msg.Payload())
	}))
}

func (m *MQTT) dispatch(payload []byte) {
	a, err := ParseAction(payload)
	if err != nil {
		log.Printf("notify: mqtt action ignored: %v", err)
		return
	}
	m.mu.Lock()
	fn := m.onAction
	m.mu.Unlock()
	if fn != nil {
		fn(a)
	}
}

func (m *MQTT) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.mu.Lock()
	hasAction := m.onAction != nil
	m.mu.Unlock()
	if hasAction {
		_ = m.wait(m.client.Unsubscribe(m.ActionTopic()))
	}
	m.client.Disconnect(250)
}

func (m *MQTT) wait(t mqtt.Token) error {
	if !t.WaitTimeout(m.cfg.Timeout) {
		return fmt.Errorf("timeout after %s", m.cfg.Timeout)
	}
	return t.Error()
}

// ParseAction decodes {"action":"stop","notification_id":1}. A bare action
// name such as "stop" is accepted too; any other non-object payload is
// rejected. A missing notification id maps to
// session.NoNotificationID.
func ParseAction(payload []byte) (session.Action, error) {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 {
		return session.Action{}, fmt.Errorf("empty action")
	}
	if p[0] != '{' {
		if !isActionName(p) {
			return session.Action{}, fmt.Errorf("invalid action %q", p)
		}
		return session.Action{Name: string(p), NotificationID: session.NoNotificationID}, nil
	}
	var in struct {
		Action         string `json:"action"`
		NotificationID *int   `json:"notification_id"`
	}
	if err := json.Unmarshal(p, &in); err != nil {
		return session.Action{}, fmt.Errorf("invalid action json: %w", err)
	}
	if in.Action == "" {
		return session.Action{}, fmt.Errorf("action name is required")
	}
	a := session.Action{Name: in.Action, NotificationID: session.NoNotificationID}
	if in.NotificationID != nil {
		a.NotificationID = *in.NotificationID
	}
	return a, nil
}

// isActionName reports whether p is a plain identifier: lowercase letters,
// digits and underscores, starting with a letter.
func isActionName(p []byte) bool {
	for i, c := range p {
		switch {
		case c >= 'a' && c <= 'z', c == '_' && i > 0, c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return len(p) > 0
}
