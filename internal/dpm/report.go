package dpm

import "time"

// ReportKind classifies a Report.
type ReportKind string

const (
	ReportTransitionStart ReportKind = "transition_start"
	ReportTransitionEnd   ReportKind = "transition_end"
	ReportPhaseStart      ReportKind = "phase_start"
	ReportPhaseEnd        ReportKind = "phase_end"
	ReportCallback        ReportKind = "callback"
)

// Report is an observation emitted while a transition runs.
type Report struct {
	Kind         ReportKind    `json:"kind"`
	TransitionID string        `json:"transition_id,omitempty"`
	Phase        Phase         `json:"phase,omitempty"`
	Device       string        `json:"device,omitempty"`
	Driver       string        `json:"driver,omitempty"`
	Level        string        `json:"level,omitempty"`
	Verb         string        `json:"verb,omitempty"`
	Async        bool          `json:"async,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
	Code         int           `json:"code,omitempty"`
	Error        string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}

// Failed reports whether the observation carries an error.
func (r Report) Failed() bool {
	return r.Error != ""
}

// Sink receives reports. Report is called from the driving goroutine and
// from async workers, so implementations must be safe for concurrent use
// and must not block for long.
type Sink interface {
	Report(r Report)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r Report)

func (f SinkFunc) Report(r Report) { f(r) }

// MultiSink fans a report out to several sinks in order.
type MultiSink []Sink

func (ms MultiSink) Report(r Report) {
	for _, s := range ms {
		s.Report(r)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
