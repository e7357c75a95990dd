// Package influxdb provides InfluxDB connectivity for dpmcore.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing, and health monitoring.
//
// # Purpose
//
// This package stores the time series that are too fine-grained for the
// Prometheus histograms:
//   - per-device callback latency (dpm_callback)
//   - whole transition duration and result (dpm_transition)
//   - DVFS step changes (dvfs_step)
//
// # Usage
//
//	client, err := influxdb.ConnectWithRetry(ctx, cfg.InfluxDB, 5)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDVFSStep(influxdb.StepSample{From: 0, To: 1, ClockMHz: 266, At: time.Now()})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback (SetOnError). Connection and health check errors are returned
// directly.
package influxdb
