package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// MQTTConfig configures broker delivery.
type MQTTConfig struct {
	Broker   string // host:port or full URL
	ClientID string
	Username string
	Password string
	Topic    string // alerts go to <Topic>/<camera>/<kind>
	QoS      byte
}

// MQTT publishes alerts as JSON.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *slog.Logger
}

// NewMQTT connects to the broker. The client reconnects on its own after
// a lost connection.
func NewMQTT(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	logger = log.Component(logger, "notify.mqtt")
	if cfg.Topic == "" {
		cfg.Topic = "shesafe/alerts"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "shesafe"
	}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: mqtt: connection timeout to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt: connect: %w", err)
	}

	return &MQTT{cfg: cfg, client: client, logger: logger}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

// Topic returns the topic ev is published on.
func (m *MQTT) Topic(ev alert.Event) string {
	return fmt.Sprintf("%s/%s/%s", m.cfg.Topic, ev.Camera, ev.Kind)
}

func (m *MQTT) Send(ctx context.Context, ev alert.Event) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	token := m.client.Publish(m.Topic(ev), m.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects with a 250 ms grace period.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
