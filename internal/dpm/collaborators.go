package dpm

import (
	"sync"
	"sync/atomic"
)

// RuntimePM is the runtime power-management collaborator consulted while
// preparing and completing devices.
type RuntimePM interface {
	// GetNoResume takes a usage reference without resuming the device.
	GetNoResume(dev *Device)
	// Barrier flushes pending runtime activity and reports whether a
	// wake-up request was pending.
	Barrier(dev *Device) bool
	// PutSync drops a usage reference.
	PutSync(dev *Device)
}

// IRQController masks and unmasks device interrupts around the noirq phases.
type IRQController interface {
	SuspendIRQs()
	ResumeIRQs()
}

// Tracer reports whether resume tracing is active. While it is, every
// device is handled synchronously so that a hang can be attributed.
type Tracer interface {
	ResumeTraceEnabled() bool
}

// RuntimeRefs is an in-memory RuntimePM that counts usage references and
// holds pending wake-up requests.
type RuntimeRefs struct {
	mu    sync.Mutex
	usage map[*Device]int
	wake  map[*Device]bool
}

// NewRuntimeRefs creates an empty reference tracker.
func NewRuntimeRefs() *RuntimeRefs {
	return &RuntimeRefs{
		usage: make(map[*Device]int),
		wake:  make(map[*Device]bool),
	}
}

func (r *RuntimeRefs) GetNoResume(dev *Device) {
	r.mu.Lock()
	r.usage[dev]++
	r.mu.Unlock()
}

func (r *RuntimeRefs) Barrier(dev *Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.wake[dev]
	delete(r.wake, dev)
	return pending
}

func (r *RuntimeRefs) PutSync(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usage[dev] > 0 {
		r.usage[dev]--
	}
	if r.usage[dev] == 0 {
		delete(r.usage, dev)
	}
}

// RequestWake queues a wake-up request that the next Barrier on dev observes.
func (r *RuntimeRefs) RequestWake(dev *Device) {
	r.mu.Lock()
	r.wake[dev] = true
	r.mu.Unlock()
}

// Usage returns the outstanding reference count for dev.
func (r *RuntimeRefs) Usage(dev *Device) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage[dev]
}

// IRQMask is an IRQController that records the mask state.
type IRQMask struct {
	masked atomic.Bool
}

func (m *IRQMask) SuspendIRQs() { m.masked.Store(true) }
func (m *IRQMask) ResumeIRQs()  { m.masked.Store(false) }

// Masked reports whether interrupts are currently masked.
func (m *IRQMask) Masked() bool { return m.masked.Load() }

// TraceSwitch is a Tracer backed by a flag.
type TraceSwitch struct {
	on atomic.Bool
}

// Set enables or disables resume tracing.
func (t *TraceSwitch) Set(on bool) { t.on.Store(on) }

func (t *TraceSwitch) ResumeTraceEnabled() bool { return t.on.Load() }
