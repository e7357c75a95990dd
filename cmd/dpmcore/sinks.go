package main

import (
	"context"
	"time"

	"github.com/drowningchild/dpmcore/internal/dpm"
	"github.com/drowningchild/dpmcore/internal/dvfs"
	"github.com/drowningchild/dpmcore/internal/infrastructure/influxdb"
	"github.com/drowningchild/dpmcore/internal/infrastructure/logging"
	"github.com/drowningchild/dpmcore/internal/infrastructure/mqtt"
)

// eventQueueSize bounds the events waiting to be published over MQTT.
const eventQueueSize = 1024

// EventPublisher is the part of mqtt.Client the publisher needs.
type EventPublisher interface {
	PublishEvent(kind string, v any) error
}

var _ EventPublisher = (*mqtt.Client)(nil)

type queuedEvent struct {
	kind    string
	payload any
}

// mqttPublisher forwards reports and step changes to MQTT from its own
// goroutine. Report never blocks; events are dropped when the queue is
// full.
type mqttPublisher struct {
	client EventPublisher
	log    *logging.Logger
	queue  chan queuedEvent
}

func newMQTTPublisher(client EventPublisher, log *logging.Logger) *mqttPublisher {
	return &mqttPublisher{
		client: client,
		log:    log,
		queue:  make(chan queuedEvent, eventQueueSize),
	}
}

// Report implements dpm.Sink.
func (p *mqttPublisher) Report(r dpm.Report) {
	p.enqueue(string(r.Kind), r)
}

// Observe has the dvfs.Observer signature.
func (p *mqttPublisher) Observe(c dvfs.Change) {
	p.enqueue("dvfs", c)
}

func (p *mqttPublisher) enqueue(kind string, payload any) {
	select {
	case p.queue <- queuedEvent{kind: kind, payload: payload}:
	default:
		p.log.Warn("mqtt event queue full, dropping event", "kind", kind)
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *mqttPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.queue:
			if err := p.client.PublishEvent(ev.kind, ev.payload); err != nil {
				p.log.Debug("mqtt event publish failed", "kind", ev.kind, "error", err)
			}
		}
	}
}

// PointWriter is the part of influxdb.Client the recorder needs.
type PointWriter interface {
	WriteCallback(s influxdb.CallbackSample)
	WriteTransition(event, result string, d time.Duration, at time.Time)
	WriteDVFSStep(s influxdb.StepSample)
}

var _ PointWriter = (*influxdb.Client)(nil)

// influxRecorder writes callback latencies, transition durations and DVFS
// steps as points. The client batches writes, so it is safe as a Sink.
type influxRecorder struct {
	client PointWriter
}

// Report implements dpm.Sink.
func (w influxRecorder) Report(r dpm.Report) {
	switch r.Kind {
	case dpm.ReportCallback:
		w.client.WriteCallback(influxdb.CallbackSample{
			Device:   r.Device,
			Driver:   r.Driver,
			Phase:    string(r.Phase),
			Level:    r.Level,
			Async:    r.Async,
			Duration: r.Duration,
			Failed:   r.Failed(),
			At:       r.Time,
		})
	case dpm.ReportTransitionEnd:
		result := dpm.ResultOK
		if r.Failed() {
			result = dpm.ResultFailed
		}
		w.client.WriteTransition(r.Verb, result, r.Duration, r.Time)
	}
}

// Observe has the dvfs.Observer signature.
func (w influxRecorder) Observe(c dvfs.Change) {
	w.client.WriteDVFSStep(influxdb.StepSample{
		From:        c.From,
		To:          c.To,
		ClockMHz:    c.Step.ClockMHz,
		VoltageUV:   c.Step.VoltageUV,
		Utilisation: c.Utilisation,
		Reason:      string(c.Reason),
		At:          c.At,
	})
}
