package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	t.Setenv("PANEL_SERVER", "http://dashboard.local:5000")

	path := writeConfig(t, "config.yaml", `
log_level: debug
server_url: ${PANEL_SERVER}
poll_interval: 500ms
send_rate_limit: 2
datadog:
  enabled: ${DD_ENABLED:false}
devices:
  - id: livingroom
    label: Living Room
  - id: bedroom
    presets: [Sleep]
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "http://dashboard.local:5000", cfg.ServerURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval.Duration())
	assert.Equal(t, 2.0, cfg.SendRateLimit)
	assert.False(t, cfg.Datadog.Enabled)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, model.CardDefinition{ID: "livingroom", Label: "Living Room", Position: 0}, cfg.Devices[0])
	assert.Equal(t, model.CardDefinition{ID: "bedroom", Label: "bedroom", Presets: []string{"Sleep"}, Position: 1}, cfg.Devices[1])
}

func TestLoadFile_JSONDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"transport": "mqtt",
		"mqtt": {"broker": "tcp://192.168.4.195:1883"},
		"devices": [{"id": "livingroom"}]
	}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval.Duration())
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout.Duration())
	assert.Equal(t, 0.5, cfg.Step)
	assert.Equal(t, 0.05, cfg.Epsilon)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "thermostat-panel", cfg.MQTT.ClientID)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadFile_JSONDurationForms(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"server_url": "http://x",
		"poll_interval": 250,
		"request_timeout": "3s",
		"devices": [{"id": "a"}]
	}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Duration())
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout.Duration())
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "bad.json", `{"server_url": "http://x", "unknown_field": 1}`)
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "parse json")

	path = writeConfig(t, "bad.yaml", "devices: [")
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "parse yaml")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  Config{Transport: TransportHTTP, ServerURL: "http://x", Devices: []model.CardDefinition{{ID: "a"}, {ID: "b"}}},
		},
		{
			name:    "duplicate ids",
			cfg:     Config{Transport: TransportHTTP, ServerURL: "http://x", Devices: []model.CardDefinition{{ID: "a"}, {ID: "a"}}},
			wantErr: `both use id "a"`,
		},
		{
			name:    "empty id",
			cfg:     Config{Transport: TransportHTTP, ServerURL: "http://x", Devices: []model.CardDefinition{{ID: " "}}},
			wantErr: "has no id",
		},
		{
			name:    "slash in id",
			cfg:     Config{Transport: TransportMQTT, MQTT: MQTT{Broker: "tcp://b:1883"}, Devices: []model.CardDefinition{{ID: "a/b"}}},
			wantErr: "must not contain",
		},
		{
			name:    "no devices",
			cfg:     Config{Transport: TransportHTTP, ServerURL: "http://x"},
			wantErr: "at least one device",
		},
		{
			name:    "missing server",
			cfg:     Config{Transport: TransportHTTP, Devices: []model.CardDefinition{{ID: "a"}}},
			wantErr: "server_url is required",
		},
		{
			name:    "missing broker",
			cfg:     Config{Transport: TransportMQTT, Devices: []model.CardDefinition{{ID: "a"}}},
			wantErr: "mqtt.broker is required",
		},
		{
			name:    "unknown transport",
			cfg:     Config{Transport: "carrier-pigeon", Devices: []model.CardDefinition{{ID: "a"}}},
			wantErr: "unknown transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PANEL_SET", "value")
	t.Setenv("PANEL_EMPTY", "")

	assert.Equal(t, "value", expandEnvVars("${PANEL_SET}"))
	assert.Equal(t, "value", expandEnvVars("${PANEL_SET:fallback}"))
	assert.Equal(t, "fallback", expandEnvVars("${PANEL_EMPTY:fallback}"))
	assert.Equal(t, "", expandEnvVars("${PANEL_UNSET_VAR}"))
	assert.Equal(t, "a-value-b", expandEnvVars("a-${PANEL_SET}-b"))
}
