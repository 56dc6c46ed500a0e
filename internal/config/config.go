// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads xbeestat settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// DefaultPath is read when no --config flag is given. A missing file at
// this path is not an error.
const DefaultPath = "xbeestat.yaml"

// Config is the root configuration structure.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Device    DeviceConfig    `yaml:"device"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Capture   CaptureConfig   `yaml:"capture"`
}

// SerialConfig contains serial port settings.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// WebSocketConfig contains settings for a WebSocket serial bridge.
type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// DeviceConfig describes the local module and engine timing.
type DeviceConfig struct {
	Mode           string        `yaml:"mode"`
	Protocol       string        `yaml:"protocol"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	FrameTimeout   time.Duration `yaml:"frame_timeout"`
	GuardTime      time.Duration `yaml:"guard_time"`
	MaxFrameLength int           `yaml:"max_frame_length"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DatabaseConfig contains SQLite settings for the device store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains settings for the MQTT bridge.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CaptureConfig contains frame capture settings.
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from path. The file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOptional reads configuration from path, falling back to defaults
// when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(Default())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:    9600,
			ReadTimeout: 100 * time.Millisecond,
		},
		Device: DeviceConfig{
			Mode:           "auto",
			Protocol:       "unknown",
			ReceiveTimeout: 2 * time.Second,
			ProbeTimeout:   time.Second,
			FrameTimeout:   500 * time.Millisecond,
			GuardTime:      time.Second,
			MaxFrameLength: xbee.DefaultMaxFrameLength,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Database: DatabaseConfig{
			Path:        "./xbeestat.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "xbeestat",
			},
			QoS:         1,
			TopicPrefix: "xbeestat",
		},
	}
}

// applyEnvOverrides applies XBEESTAT_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("XBEESTAT_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("XBEESTAT_BAUD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Serial.BaudRate = n
		}
	}

	if v := os.Getenv("XBEESTAT_WS_URL"); v != "" {
		cfg.WebSocket.URL = v
	}
	if v := os.Getenv("XBEESTAT_WS_USERNAME"); v != "" {
		cfg.WebSocket.Username = v
	}

	if v := os.Getenv("XBEESTAT_MODE"); v != "" {
		cfg.Device.Mode = v
	}
	if v := os.Getenv("XBEESTAT_PROTOCOL"); v != "" {
		cfg.Device.Protocol = v
	}

	if v := os.Getenv("XBEESTAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("XBEESTAT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("XBEESTAT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("XBEESTAT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("XBEESTAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	if _, err := xbee.ParseOperatingMode(c.Device.Mode); err != nil {
		errs = append(errs, "device.mode must be auto, at, api or api_escaped")
	}
	if _, err := xbee.ParseProtocol(c.Device.Protocol); err != nil {
		errs = append(errs, fmt.Sprintf("device.protocol: %v", err))
	}
	if c.Device.ReceiveTimeout <= 0 {
		errs = append(errs, "device.receive_timeout must be positive")
	}
	if c.Device.ProbeTimeout <= 0 {
		errs = append(errs, "device.probe_timeout must be positive")
	}
	if c.Device.FrameTimeout <= 0 {
		errs = append(errs, "device.frame_timeout must be positive")
	}
	if c.Device.GuardTime < 0 {
		errs = append(errs, "device.guard_time must not be negative")
	}
	if c.Device.MaxFrameLength < 1 || c.Device.MaxFrameLength > xbee.MaxFrameLength {
		errs = append(errs, "device.max_frame_length must be between 1 and 65535")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// OperatingMode returns the configured mode. Unknown means probe.
func (d DeviceConfig) OperatingMode() xbee.OperatingMode {
	m, _ := xbee.ParseOperatingMode(d.Mode)
	return m
}

// ProtocolFamily returns the configured protocol family.
func (d DeviceConfig) ProtocolFamily() xbee.Protocol {
	p, _ := xbee.ParseProtocol(d.Protocol)
	return p
}

// BrokerURL returns the MQTT broker URL.
func (m MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if m.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.Broker.Host, m.Broker.Port)
}
