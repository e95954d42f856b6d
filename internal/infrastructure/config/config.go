package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ESP-RFID Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Manager       ManagerConfig       `yaml:"manager"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ManagerConfig contains the core device-management settings.
type ManagerConfig struct {
	// BaseTopic is the root of the esp-rfid topic tree the devices publish
	// under. Devices default to "/esprfid" in their firmware configuration.
	BaseTopic string `yaml:"base_topic"`

	// LivenessTimeout is the maximum silence (seconds) before a device is
	// presumed offline. Must cover several missed heartbeats: devices send
	// a heartbeat roughly every 20 seconds, so the default of 90 seconds
	// tolerates four missed beats without flapping.
	LivenessTimeout int `yaml:"liveness_timeout"`

	// SweepInterval is how often (seconds) the liveness sweeper scans for
	// silent devices. Independent of LivenessTimeout.
	SweepInterval int `yaml:"sweep_interval"`

	// DetectionSessionTTL is how long (seconds) a card-detection session
	// stays active without an explicit stop. Protects against operators
	// closing the add-card dialog without signalling.
	DetectionSessionTTL int `yaml:"detection_session_ttl"`

	// SingleDevice enables the shared command topic fallback when a command
	// target cannot be resolved to a hostname. Only safe when exactly one
	// device shares the bus; with multiple devices an unresolvable target
	// is treated as an error instead.
	SingleDevice bool `yaml:"single_device"`

	// DeleteQuiescePeriod is the minimum time (seconds) a device must have
	// been offline before an explicit delete is accepted.
	DeleteQuiescePeriod int `yaml:"delete_quiesce_period"`
}

// DatabaseConfig contains SQLite database settings.
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// HomeAssistantConfig contains MQTT discovery settings for the automation hub.
type HomeAssistantConfig struct {
	// Enabled controls whether discovery configs and sensor states are
	// published to the hub at all.
	Enabled bool `yaml:"enabled"`

	// DiscoveryPrefix is the hub's discovery topic root. Home Assistant
	// defaults to "homeassistant".
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// InfluxDBConfig contains InfluxDB connection settings for access telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
// Environment variables follow the pattern: ESPRFID_SECTION_KEY
// For example: ESPRFID_DATABASE_PATH, ESPRFID_MQTT_HOST
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

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Manager: ManagerConfig{
			BaseTopic:           "/esprfid",
			LivenessTimeout:     90,
			SweepInterval:       15,
			DetectionSessionTTL: 300,
			DeleteQuiescePeriod: 300,
		},
		Database: DatabaseConfig{
			Path:        "./data/esprfid.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "esprfid-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		HomeAssistant: HomeAssistantConfig{
			Enabled:         true,
			DiscoveryPrefix: "homeassistant",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ESPRFID_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Manager
	if v := os.Getenv("ESPRFID_BASE_TOPIC"); v != "" {
		cfg.Manager.BaseTopic = v
	}

	// Database
	if v := os.Getenv("ESPRFID_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ESPRFID_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ESPRFID_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("ESPRFID_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ESPRFID_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ESPRFID_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ESPRFID_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Manager validation
	if c.Manager.BaseTopic == "" {
		errs = append(errs, "manager.base_topic is required")
	}
	if c.Manager.LivenessTimeout <= 0 {
		errs = append(errs, "manager.liveness_timeout must be positive")
	}
	if c.Manager.SweepInterval <= 0 {
		errs = append(errs, "manager.sweep_interval must be positive")
	}
	if c.Manager.SweepInterval > c.Manager.LivenessTimeout {
		errs = append(errs, "manager.sweep_interval must not exceed manager.liveness_timeout")
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

	// Home Assistant validation
	if c.HomeAssistant.Enabled && c.HomeAssistant.DiscoveryPrefix == "" {
		errs = append(errs, "homeassistant.discovery_prefix is required when discovery is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetLivenessTimeout returns the device liveness timeout as a Duration.
func (c *Config) GetLivenessTimeout() time.Duration {
	return time.Duration(c.Manager.LivenessTimeout) * time.Second
}

// GetSweepInterval returns the liveness sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Manager.SweepInterval) * time.Second
}

// GetDetectionSessionTTL returns the detection session lifetime as a Duration.
func (c *Config) GetDetectionSessionTTL() time.Duration {
	return time.Duration(c.Manager.DetectionSessionTTL) * time.Second
}

// GetDeleteQuiescePeriod returns the device delete quiesce period as a Duration.
func (c *Config) GetDeleteQuiescePeriod() time.Duration {
	return time.Duration(c.Manager.DeleteQuiescePeriod) * time.Second
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
