package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic WhatsApp bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Bridges   []BridgeConfig  `yaml:"bridges"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig contains service-level identification.
type ServiceConfig struct {
	ID string `yaml:"id"`
}

// BridgeConfig describes one whatsapp-web.js bridge server to connect to.
// Each entry becomes a session in the client registry.
type BridgeConfig struct {
	// ID is the stable session identifier used in MQTT topics and the API.
	// Generated (UUID) when empty.
	ID string `yaml:"id"`

	// Host and Port locate the bridge server's HTTP/WebSocket endpoints.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Token is the bearer credential shared with the bridge server.
	Token string `yaml:"token"`

	// ReconnectDelaySeconds is the fixed delay between push-channel
	// reconnect attempts. The bridge retries forever; short outages
	// (process restart, Docker network blip) must self-heal.
	// Default: 5
	ReconnectDelaySeconds int `yaml:"reconnect_delay_seconds"`
}

// DatabaseConfig contains SQLite database settings for the message log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the local event-stream WebSocket.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_WA_SECTION_KEY
// For example: GRAYLOGIC_WA_DATABASE_PATH, GRAYLOGIC_WA_API_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Fill per-bridge defaults
	applyBridgeDefaults(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID: "whatsapp-bridge-01",
		},
		Database: DatabaseConfig{
			Path:        "./data/whatsapp.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-whatsapp",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_WA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_WA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_WA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_WA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_WA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_WA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_WA_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// API token (always override in production rather than storing in YAML)
	if v := os.Getenv("GRAYLOGIC_WA_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	// Single-bridge token override; applies when exactly one bridge is
	// configured (the common deployment).
	if v := os.Getenv("GRAYLOGIC_WA_BRIDGE_TOKEN"); v != "" && len(cfg.Bridges) == 1 {
		cfg.Bridges[0].Token = v
	}
}

// defaultReconnectDelaySeconds is the fixed delay between push-channel
// reconnect attempts when a bridge entry does not set one.
const defaultReconnectDelaySeconds = 5

// applyBridgeDefaults fills defaults on each bridge entry.
func applyBridgeDefaults(cfg *Config) {
	for i := range cfg.Bridges {
		if cfg.Bridges[i].ReconnectDelaySeconds <= 0 {
			cfg.Bridges[i].ReconnectDelaySeconds = defaultReconnectDelaySeconds
		}
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Service validation
	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	// Bridge validation
	if len(c.Bridges) == 0 {
		errs = append(errs, "at least one bridge must be configured")
	}
	for i, b := range c.Bridges {
		if b.Host == "" {
			errs = append(errs, fmt.Sprintf("bridges[%d].host is required", i))
		}
		if b.Port < 1 || b.Port > 65535 {
			errs = append(errs, fmt.Sprintf("bridges[%d].port must be between 1 and 65535", i))
		}
		if b.Token == "" {
			errs = append(errs, fmt.Sprintf("bridges[%d].token is required (set GRAYLOGIC_WA_BRIDGE_TOKEN)", i))
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	// The API token protects send/logout operations on a messaging account.
	// An empty token would expose them to anything that can reach the port.
	if c.API.Token == "" {
		errs = append(errs, "api.token is required (set GRAYLOGIC_WA_API_TOKEN environment variable)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ReconnectDelay returns the bridge entry's reconnect delay as a Duration.
func (b BridgeConfig) ReconnectDelay() time.Duration {
	return time.Duration(b.ReconnectDelaySeconds) * time.Second
}
