// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xbeestat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB0
  baud_rate: 115200
device:
  mode: api_escaped
  protocol: zigbee
  receive_timeout: 3s
mqtt:
  enabled: true
  topic_prefix: lab
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, xbee.ModeAPIEscaped, cfg.Device.OperatingMode())
	assert.Equal(t, xbee.ProtocolZigBee, cfg.Device.ProtocolFamily())
	assert.Equal(t, 3*time.Second, cfg.Device.ReceiveTimeout)
	assert.Equal(t, "lab", cfg.MQTT.TopicPrefix)

	// Unset fields keep their defaults
	assert.Equal(t, time.Second, cfg.Device.ProbeTimeout)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/xbeestat.yaml")
	assert.Error(t, err)
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Device, cfg.Device)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
device:
  mode: turbo
  max_frame_length: 0
mqtt:
  qos: 3
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device.mode")
	assert.Contains(t, err.Error(), "device.max_frame_length")
	assert.Contains(t, err.Error(), "mqtt.qos")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XBEESTAT_SERIAL_PORT", "/dev/ttyACM1")
	t.Setenv("XBEESTAT_BAUD_RATE", "57600")
	t.Setenv("XBEESTAT_MODE", "at")
	t.Setenv("XBEESTAT_MQTT_PASSWORD", "secret")

	path := writeConfig(t, "serial:\n  port: /dev/ttyUSB0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, xbee.ModeTransparentAT, cfg.Device.OperatingMode())
	assert.Equal(t, "secret", cfg.MQTT.Auth.Password)
}

func TestValidate_MQTTOnlyCheckedWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Broker.Host = ""
	assert.NoError(t, cfg.Validate())

	cfg.MQTT.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "mqtt.broker.host")
}
