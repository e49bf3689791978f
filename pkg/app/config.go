// Package app wires the monitoring system together: camera workers, alert
// coordination, notification, the ledger, hotspot aggregation and the API.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-shesafe/internal/config"
	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/audio"
	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/hotspot"
	"github.com/teslashibe/go-shesafe/pkg/ledger"
	"github.com/teslashibe/go-shesafe/pkg/notify"
	"github.com/teslashibe/go-shesafe/pkg/web"
	"github.com/teslashibe/go-shesafe/pkg/worker"
)

// Config holds all configuration for the daemon.
// Flag parsing is done in cmd/shesafe/main.go; this struct is data only.
type Config struct {
	LogLevel string

	// Cameras come from CameraFile when set, otherwise from Preset.
	CameraFile string
	Preset     string

	// Fresh removes the ledger and hotspot artifacts at startup.
	Fresh bool

	Ledger  ledger.Config
	Hotspot hotspot.Config
	Web     web.Config
	Worker  worker.Config

	// Cooldowns per alert family.
	RiskCooldown    time.Duration
	GestureCooldown time.Duration
	AudioCooldown   time.Duration
	HoldWindow      time.Duration

	// Alert sounds. Empty SoundDir disables playback.
	SoundDir     string
	SoundCommand []string

	// Audio anomaly detection, for cameras with an audio device.
	AudioThreshold  float64
	AudioRefractory time.Duration

	Notify     notify.Config
	Gmail      notify.GmailConfig
	MQTT       notify.MQTTConfig
	Redis      notify.RedisConfig
	WebhookURL string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		Preset:          camera.PresetWebcam,
		Ledger:          ledger.Config{Backend: "csv", Path: ledger.DefaultCSVPath},
		Hotspot:         hotspot.DefaultConfig(),
		Web:             web.DefaultConfig(),
		Worker:          worker.DefaultConfig(),
		RiskCooldown:    8 * time.Second,
		GestureCooldown: 10 * time.Second,
		AudioCooldown:   10 * time.Second,
		HoldWindow:      alert.DefaultHoldWindow,
		SoundCommand:    []string{"aplay", "-q"},
		AudioThreshold:  audio.DefaultThreshold,
		AudioRefractory: audio.DefaultRefractory,
		Notify:          notify.DefaultConfig(),
		MQTT:            notify.MQTTConfig{ClientID: "shesafe", Topic: "shesafe/alerts", QoS: 1},
	}
}

// LoadEnv applies SHESAFE_* environment overrides. Call it after flag
// parsing and config.LoadDotEnv.
func (c *Config) LoadEnv() {
	c.LogLevel = config.String("SHESAFE_LOG_LEVEL", c.LogLevel)
	c.CameraFile = config.String("SHESAFE_CAMERAS", c.CameraFile)
	c.Fresh = config.Bool("SHESAFE_FRESH", c.Fresh)

	c.Ledger.Backend = config.String("SHESAFE_LEDGER", c.Ledger.Backend)
	c.Ledger.Path = config.String("SHESAFE_LEDGER_PATH", c.Ledger.Path)
	c.Ledger.DSN = config.String("SHESAFE_LEDGER_DSN", c.Ledger.DSN)

	c.Hotspot.Period = config.Duration("SHESAFE_HOTSPOT_PERIOD", c.Hotspot.Period)
	c.Web.Addr = config.String("SHESAFE_ADDR", c.Web.Addr)
	c.Web.AlertLimit = config.Int("SHESAFE_ALERT_LIMIT", c.Web.AlertLimit)

	c.SoundDir = config.String("SHESAFE_SOUND_DIR", c.SoundDir)

	c.Gmail.ClientID = config.String("GOOGLE_CLIENT_ID", c.Gmail.ClientID)
	c.Gmail.ClientSecret = config.String("GOOGLE_CLIENT_SECRET", c.Gmail.ClientSecret)
	c.Gmail.TokenPath = config.String("SHESAFE_GMAIL_TOKEN", c.Gmail.TokenPath)
	c.Gmail.From = config.String("SHESAFE_EMAIL_FROM", c.Gmail.From)
	if to := config.String("SHESAFE_EMAIL_TO", ""); to != "" {
		c.Gmail.To = splitList(to)
	}

	c.MQTT.Broker = config.String("SHESAFE_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = config.String("SHESAFE_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = config.String("SHESAFE_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.Topic = config.String("SHESAFE_MQTT_TOPIC", c.MQTT.Topic)

	c.Redis.Addr = config.String("SHESAFE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = config.String("SHESAFE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Channel = config.String("SHESAFE_REDIS_CHANNEL", c.Redis.Channel)

	c.WebhookURL = config.String("SHESAFE_WEBHOOK_URL", c.WebhookURL)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.CameraFile == "" {
		if _, ok := camera.Presets()[c.Preset]; !ok {
			return &ConfigError{Field: "Preset", Message: fmt.Sprintf("unknown camera preset %q (have %s)", c.Preset, strings.Join(camera.PresetNames(), ", "))}
		}
	}
	for name, d := range map[string]time.Duration{
		"RiskCooldown":    c.RiskCooldown,
		"GestureCooldown": c.GestureCooldown,
		"AudioCooldown":   c.AudioCooldown,
		"HoldWindow":      c.HoldWindow,
	} {
		if d < 0 {
			return &ConfigError{Field: name, Message: name + " must not be negative"}
		}
	}
	if c.SoundDir != "" && len(c.SoundCommand) == 0 {
		return &ConfigError{Field: "SoundCommand", Message: "a sound command is required when SoundDir is set"}
	}
	if c.Gmail.ClientID != "" && len(c.Gmail.To) == 0 {
		return &ConfigError{Field: "Gmail.To", Message: "SHESAFE_EMAIL_TO is required for email alerts"}
	}
	return nil
}

// Policies returns the per-kind alert policies with the configured cooldowns.
func (c *Config) Policies() map[alert.Kind]alert.Policy {
	p := alert.DefaultPolicies()
	set := func(k alert.Kind, d time.Duration) {
		pol := p[k]
		pol.Cooldown = d
		p[k] = pol
	}
	set(alert.KindWomanIsolated, c.RiskCooldown)
	set(alert.KindWomanSurrounded, c.RiskCooldown)
	set(alert.KindTuckThumb, c.GestureCooldown)
	set(alert.KindTrapThumb, c.GestureCooldown)
	set(alert.KindHighRiskAudio, c.AudioCooldown)
	return p
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
