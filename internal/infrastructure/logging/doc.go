// Package logging builds the structured logger shared by every dpmcore
// component.
//
// It wraps log/slog with the service and version fields, a configurable
// level, JSON or text output and human-readable durations. Components take
// a child logger tagged with their name:
//
//	log := logging.New(cfg.Logging, version)
//	mgr, err := dpm.New(dpmCfg, dpm.WithLogger(log.Component("dpm")))
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
package logging
