package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
service:
  id: "wa-test"
bridges:
  - id: "primary"
    host: "bridge.local"
    port: 3000
    token: "bridge-token"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
  token: "api-token"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "wa-test" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "wa-test")
	}
	if len(cfg.Bridges) != 1 {
		t.Fatalf("len(Bridges) = %d, want 1", len(cfg.Bridges))
	}
	if cfg.Bridges[0].Host != "bridge.local" {
		t.Errorf("Bridges[0].Host = %q, want %q", cfg.Bridges[0].Host, "bridge.local")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_BridgeReconnectDefault(t *testing.T) {
	content := `
bridges:
  - host: "bridge.local"
    port: 3000
    token: "bridge-token"
api:
  token: "api-token"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Bridges[0].ReconnectDelaySeconds; got != 5 {
		t.Errorf("ReconnectDelaySeconds = %d, want 5", got)
	}
	if got := cfg.Bridges[0].ReconnectDelay(); got != 5*time.Second {
		t.Errorf("ReconnectDelay() = %v, want 5s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
bridges:
  - host: "bridge.local"
    port: 3000
    token: "from-file"
api:
  token: "api-token"
`
	t.Setenv("GRAYLOGIC_WA_BRIDGE_TOKEN", "from-env")
	t.Setenv("GRAYLOGIC_WA_MQTT_HOST", "broker.local")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridges[0].Token != "from-env" {
		t.Errorf("Bridges[0].Token = %q, want %q", cfg.Bridges[0].Token, "from-env")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestConfig_Validate(t *testing.T) {
	validBridge := BridgeConfig{
		ID:                    "primary",
		Host:                  "bridge.local",
		Port:                  3000,
		Token:                 "bridge-token",
		ReconnectDelaySeconds: 5,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing service id",
			mutate:  func(c *Config) { c.Service.ID = "" },
			wantErr: true,
		},
		{
			name:    "no bridges",
			mutate:  func(c *Config) { c.Bridges = nil },
			wantErr: true,
		},
		{
			name:    "bridge missing host",
			mutate:  func(c *Config) { c.Bridges[0].Host = "" },
			wantErr: true,
		},
		{
			name:    "bridge port out of range",
			mutate:  func(c *Config) { c.Bridges[0].Port = 70000 },
			wantErr: true,
		},
		{
			name:    "bridge missing token",
			mutate:  func(c *Config) { c.Bridges[0].Token = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "missing api token",
			mutate:  func(c *Config) { c.API.Token = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Bridges = []BridgeConfig{validBridge}
			cfg.API.Token = "api-token"
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
