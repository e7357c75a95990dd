package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "bench-01"
power:
  async: false
  workers: 4
  watchdog_timeout: 2s
  manifest: "/etc/dpmcore/devices.yaml"
  sleep_duration: 50ms
dvfs:
  enabled: true
  sample_interval: 250ms
  control: 2
  voltages: [900000, 950000]
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
  port: 8080
`
	cfg, err := Load(writeConfig(t, t.TempDir(), content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "bench-01" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "bench-01")
	}
	if cfg.Power.Async || cfg.Power.Workers != 4 {
		t.Errorf("Power = %+v", cfg.Power)
	}
	if cfg.Power.WatchdogTimeout != 2*time.Second {
		t.Errorf("Power.WatchdogTimeout = %v, want 2s", cfg.Power.WatchdogTimeout)
	}
	if cfg.Power.SleepDuration != 50*time.Millisecond {
		t.Errorf("Power.SleepDuration = %v, want 50ms", cfg.Power.SleepDuration)
	}
	if cfg.DVFS.SampleInterval != 250*time.Millisecond || cfg.DVFS.Control != 2 {
		t.Errorf("DVFS = %+v", cfg.DVFS)
	}
	if len(cfg.DVFS.Voltages) != 2 {
		t.Errorf("DVFS.Voltages = %v", cfg.DVFS.Voltages)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, t.TempDir(), "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	_, err := Load(writeConfig(t, t.TempDir(), content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "site:\n  id: \"bench-02\"\n")
	env := "DPMCORE_API_PORT=9191\nDPMCORE_POWER_MANIFEST=/srv/devices.yaml\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	// Register the keys with t.Setenv so they are restored after the test,
	// then clear them so the .env values apply.
	t.Setenv("DPMCORE_API_PORT", "")
	t.Setenv("DPMCORE_POWER_MANIFEST", "")
	os.Unsetenv("DPMCORE_API_PORT")
	os.Unsetenv("DPMCORE_POWER_MANIFEST")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port = %d, want 9191", cfg.API.Port)
	}
	if cfg.Power.Manifest != "/srv/devices.yaml" {
		t.Errorf("Power.Manifest = %q", cfg.Power.Manifest)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("LoadEnvFile() on missing file = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.Power.Workers = 0 },
			wantErr: "power.workers",
		},
		{
			name:    "negative watchdog",
			mutate:  func(c *Config) { c.Power.WatchdogTimeout = -time.Second },
			wantErr: "power.watchdog_timeout",
		},
		{
			name:    "missing manifest",
			mutate:  func(c *Config) { c.Power.Manifest = "" },
			wantErr: "power.manifest",
		},
		{
			name:    "zero sample interval",
			mutate:  func(c *Config) { c.DVFS.SampleInterval = 0 },
			wantErr: "dvfs.sample_interval",
		},
		{
			name: "zero sample interval while disabled",
			mutate: func(c *Config) {
				c.DVFS.Enabled = false
				c.DVFS.SampleInterval = 0
			},
		},
		{
			name:    "one voltage",
			mutate:  func(c *Config) { c.DVFS.Voltages = []int{900000} },
			wantErr: "dvfs.voltages",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "influx without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Org = "o"; c.InfluxDB.Bucket = "b" },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAPITimeoutConfig(t *testing.T) {
	timeouts := APITimeoutConfig{Read: 30, Write: 45, Idle: 60}

	if got := timeouts.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := timeouts.WriteTimeout(); got != 45*time.Second {
		t.Errorf("WriteTimeout() = %v, want 45s", got)
	}
	if got := timeouts.IdleTimeout(); got != 60*time.Second {
		t.Errorf("IdleTimeout() = %v, want 60s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DPMCORE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DPMCORE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DPMCORE_MQTT_USERNAME", "testuser")
	t.Setenv("DPMCORE_MQTT_PASSWORD", "testpass")
	t.Setenv("DPMCORE_API_HOST", "192.168.1.1")
	t.Setenv("DPMCORE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DPMCORE_POWER_ASYNC", "false")
	t.Setenv("DPMCORE_POWER_WATCHDOG_TIMEOUT", "3s")
	t.Setenv("DPMCORE_LOG_LEVEL", "debug")
	t.Setenv("DPMCORE_DVFS_CONTROL", "2")
	t.Setenv("DPMCORE_POWER_WORKERS", "")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Power.Async {
		t.Error("Power.Async = true, want false")
	}
	if cfg.Power.WatchdogTimeout != 3*time.Second {
		t.Errorf("Power.WatchdogTimeout = %v, want 3s", cfg.Power.WatchdogTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.DVFS.Control != 2 {
		t.Errorf("DVFS.Control = %d, want 2", cfg.DVFS.Control)
	}
	if cfg.Power.Workers != 16 {
		t.Errorf("Power.Workers = %d, empty override should keep 16", cfg.Power.Workers)
	}
}

func TestApplyEnvOverrides_BadValue(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DPMCORE_API_PORT", "eighty"},
		{"DPMCORE_POWER_ASYNC", "maybe"},
		{"DPMCORE_POWER_WATCHDOG_TIMEOUT", "12"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			err := applyEnvOverrides(defaultConfig())
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("applyEnvOverrides() error = %v, want one naming %s", err, tt.key)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.Power.WatchdogTimeout != 12*time.Second {
		t.Errorf("defaultConfig Power.WatchdogTimeout = %v, want 12s", cfg.Power.WatchdogTimeout)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
}
