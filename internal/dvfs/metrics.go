package dvfs

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports governor state to Prometheus. Observe is an Observer.
type Metrics struct {
	step        prometheus.Gauge
	clock       prometheus.Gauge
	voltage     prometheus.Gauge
	utilisation prometheus.Gauge
	changes     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		step: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dvfs",
			Name:      "step",
			Help:      "Current operating step index.",
		}),
		clock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dvfs",
			Name:      "clock_mhz",
			Help:      "Current clock in MHz.",
		}),
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dvfs",
			Name:      "voltage_microvolts",
			Help:      "Current voltage in microvolts.",
		}),
		utilisation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dvfs",
			Name:      "utilisation",
			Help:      "Utilisation sample (0-255) that caused the last change.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dvfs",
			Name:      "step_changes_total",
			Help:      "Applied step changes by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.step, m.clock, m.voltage, m.utilisation, m.changes)
	return m
}

// Observe records a step change.
func (m *Metrics) Observe(c Change) {
	m.step.Set(float64(c.To))
	m.clock.Set(float64(c.Step.ClockMHz))
	m.voltage.Set(float64(c.Step.VoltageUV))
	m.utilisation.Set(float64(c.Utilisation))
	m.changes.WithLabelValues(string(c.Reason)).Inc()
}
