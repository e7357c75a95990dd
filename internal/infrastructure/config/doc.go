// Package config loads and validates dpmcore configuration.
//
// Values are layered: built-in defaults, then the YAML file, then a .env
// file beside it, then DPMCORE_* environment variables. Load validates the
// result and reports every problem at once.
//
// Durations under power and dvfs use Go syntax ("12s", "100ms"). The older
// API, WebSocket and InfluxDB sections keep integer seconds.
//
// Broker passwords and the InfluxDB token belong in the environment or the
// .env file rather than config.yaml.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
package config
