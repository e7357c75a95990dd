package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCallback   = "dpm_callback"
	MeasurementTransition = "dpm_transition"
	MeasurementDVFS       = "dvfs_step"
)

// CallbackSample is one device callback observed during a transition.
type CallbackSample struct {
	Device   string
	Driver   string
	Phase    string
	Level    string
	Async    bool
	Duration time.Duration
	Failed   bool
	At       time.Time
}

// StepSample is one applied DVFS step change.
type StepSample struct {
	From        int
	To          int
	ClockMHz    int
	VoltageUV   int
	Utilisation int
	Reason      string
	At          time.Time
}

// WriteCallback records the latency of a single device callback.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteCallback(influxdb.CallbackSample{
//	    Device: "mmc0", Phase: "suspend", Level: "bus",
//	    Duration: 3 * time.Millisecond, At: time.Now(),
//	})
func (c *Client) WriteCallback(s CallbackSample) {
	c.write(callbackPoint(s))
}

// WriteTransition records the outcome and duration of a whole transition.
func (c *Client) WriteTransition(event, result string, d time.Duration, at time.Time) {
	c.write(transitionPoint(event, result, d, at))
}

// WriteDVFSStep records a governor step change.
func (c *Client) WriteDVFSStep(s StepSample) {
	c.write(stepPoint(s))
}

func callbackPoint(s CallbackSample) *write.Point {
	tags := map[string]string{
		"device": s.Device,
		"phase":  s.Phase,
		"async":  strconv.FormatBool(s.Async),
	}
	if s.Driver != "" {
		tags["driver"] = s.Driver
	}
	if s.Level != "" {
		tags["level"] = s.Level
	}
	return write.NewPoint(MeasurementCallback, tags, map[string]interface{}{
		"duration_us": s.Duration.Microseconds(),
		"failed":      s.Failed,
	}, s.At)
}

func transitionPoint(event, result string, d time.Duration, at time.Time) *write.Point {
	return write.NewPoint(MeasurementTransition,
		map[string]string{"event": event, "result": result},
		map[string]interface{}{"duration_ms": d.Milliseconds()},
		at,
	)
}

func stepPoint(s StepSample) *write.Point {
	return write.NewPoint(MeasurementDVFS,
		map[string]string{"reason": s.Reason},
		map[string]interface{}{
			"from":        s.From,
			"to":          s.To,
			"clock_mhz":   s.ClockMHz,
			"voltage_uv":  s.VoltageUV,
			"utilisation": s.Utilisation,
		},
		s.At,
	)
}
