package dpm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Sink that exports transition timings to Prometheus.
type Metrics struct {
	transitions      *prometheus.CounterVec
	inProgress       prometheus.Gauge
	phaseSeconds     *prometheus.HistogramVec
	callbackSeconds  *prometheus.HistogramVec
	callbackFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dpm",
			Name:      "transitions_total",
			Help:      "Power transitions by event and result.",
		}, []string{"event", "result"}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpm",
			Name:      "transition_in_progress",
			Help:      "1 while a power transition is running.",
		}),
		phaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dpm",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each phase sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"phase", "verb", "result"}),
		callbackSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dpm",
			Name:      "callback_duration_seconds",
			Help:      "Duration of individual device callbacks.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
		}, []string{"phase", "level"}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dpm",
			Name:      "callback_failures_total",
			Help:      "Failed device callbacks.",
		}, []string{"phase", "device", "code"}),
	}
	reg.MustRegister(m.transitions, m.inProgress, m.phaseSeconds, m.callbackSeconds, m.callbackFailures)
	return m
}

// Report implements Sink.
func (m *Metrics) Report(r Report) {
	switch r.Kind {
	case ReportTransitionStart:
		m.inProgress.Set(1)
	case ReportTransitionEnd:
		m.inProgress.Set(0)
		m.transitions.WithLabelValues(r.Verb, result(r)).Inc()
	case ReportPhaseEnd:
		m.phaseSeconds.WithLabelValues(string(r.Phase), r.Verb, result(r)).Observe(r.Duration.Seconds())
	case ReportCallback:
		m.callbackSeconds.WithLabelValues(string(r.Phase), r.Level).Observe(r.Duration.Seconds())
		if r.Failed() {
			m.callbackFailures.WithLabelValues(string(r.Phase), r.Device, strconv.Itoa(r.Code)).Inc()
		}
	}
}

func result(r Report) string {
	if r.Failed() {
		return "failed"
	}
	return "ok"
}
