package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for dpmcore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Power     PowerConfig     `yaml:"power"`
	DVFS      DVFSConfig      `yaml:"dvfs"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the machine this instance runs on.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// PowerConfig contains the transition orchestrator settings.
type PowerConfig struct {
	// Async enables asynchronous suspend and resume for devices that opt in.
	Async bool `yaml:"async"`

	// Workers bounds the async worker pool.
	Workers int `yaml:"workers"`

	// WatchdogTimeout bounds a single device suspend. Zero disables it.
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`

	// Manifest is the path to the device manifest.
	Manifest string `yaml:"manifest"`

	// SleepDuration is how long the simulated system stays asleep between
	// the suspend and resume halves of a transition.
	SleepDuration time.Duration `yaml:"sleep_duration"`

	// Trace forces synchronous resume so callback order is reproducible.
	Trace bool `yaml:"trace"`
}

// DVFSConfig contains the frequency governor settings.
type DVFSConfig struct {
	Enabled bool `yaml:"enabled"`

	// Device names the manifest entry the governor attaches to.
	Device string `yaml:"device"`

	SampleInterval time.Duration `yaml:"sample_interval"`

	// Control pins a step when non-zero. See dvfs.Governor.SetControl.
	Control int `yaml:"control"`

	// Voltages overrides the step voltages (2 or 3 values, in µV).
	Voltages []int `yaml:"voltages"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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

// InfluxDBConfig contains InfluxDB connection settings.
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
//  3. A .env file next to the config file, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: DPMCORE_SECTION_KEY
// For example: DPMCORE_DATABASE_PATH, DPMCORE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // Path from command line
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := LoadEnvFile(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file without replacing ones
// already set in the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "dpm-001",
			Name: "dpmcore",
		},
		Power: PowerConfig{
			Async:           true,
			Workers:         16,
			WatchdogTimeout: 12 * time.Second,
			Manifest:        "./configs/devices.yaml",
		},
		DVFS: DVFSConfig{
			Enabled:        true,
			Device:         "gpu",
			SampleInterval: 100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path:        "./data/dpmcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dpmcore",
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
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverride binds one DPMCORE_* variable to a config field.
type envOverride struct {
	key   string
	apply func(cfg *Config, v string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envOverrides = []envOverride{
	{"DPMCORE_SITE_ID", setString(func(c *Config) *string { return &c.Site.ID })},
	{"DPMCORE_POWER_MANIFEST", setString(func(c *Config) *string { return &c.Power.Manifest })},
	{"DPMCORE_POWER_ASYNC", setBool(func(c *Config) *bool { return &c.Power.Async })},
	{"DPMCORE_POWER_WORKERS", setInt(func(c *Config) *int { return &c.Power.Workers })},
	{"DPMCORE_POWER_WATCHDOG_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.Power.WatchdogTimeout })},
	{"DPMCORE_POWER_TRACE", setBool(func(c *Config) *bool { return &c.Power.Trace })},
	{"DPMCORE_DVFS_ENABLED", setBool(func(c *Config) *bool { return &c.DVFS.Enabled })},
	{"DPMCORE_DVFS_CONTROL", setInt(func(c *Config) *int { return &c.DVFS.Control })},
	{"DPMCORE_DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"DPMCORE_MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"DPMCORE_MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"DPMCORE_MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"DPMCORE_API_HOST", setString(func(c *Config) *string { return &c.API.Host })},
	{"DPMCORE_API_PORT", setInt(func(c *Config) *int { return &c.API.Port })},
	{"DPMCORE_INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"DPMCORE_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
}

// applyEnvOverrides applies every set DPMCORE_* variable in envOverrides.
// Empty values are treated as unset.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		v := os.Getenv(o.key)
		if v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", o.key, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Power validation
	if c.Power.Workers < 1 {
		errs = append(errs, "power.workers must be at least 1")
	}
	if c.Power.WatchdogTimeout < 0 {
		errs = append(errs, "power.watchdog_timeout must not be negative")
	}
	if c.Power.SleepDuration < 0 {
		errs = append(errs, "power.sleep_duration must not be negative")
	}
	if c.Power.Manifest == "" {
		errs = append(errs, "power.manifest is required")
	}

	// DVFS validation
	if c.DVFS.Enabled && c.DVFS.SampleInterval <= 0 {
		errs = append(errs, "dvfs.sample_interval must be positive")
	}
	if c.DVFS.Control < 0 {
		errs = append(errs, "dvfs.control must not be negative")
	}
	if n := len(c.DVFS.Voltages); n != 0 && n != 2 && n != 3 {
		errs = append(errs, "dvfs.voltages must have 2 or 3 values")
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

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration. Transition requests
// run a full suspend and resume inside it.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
