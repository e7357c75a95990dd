package dvfs

import (
	"fmt"
	"sync"
)

// SimRegulator is an in-memory Regulator. It records the order of writes
// so the voltage and clock sequencing can be checked.
type SimRegulator struct {
	mu        sync.Mutex
	voltageUV int
	clockMHz  int
	writes    []string
}

// NewSimRegulator returns a regulator starting at the given operating point.
func NewSimRegulator(s Step) *SimRegulator {
	return &SimRegulator{voltageUV: s.VoltageUV, clockMHz: s.ClockMHz}
}

// SetVoltage implements Regulator.
func (r *SimRegulator) SetVoltage(uv int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voltageUV = uv
	r.writes = append(r.writes, fmt.Sprintf("voltage=%d", uv))
	return nil
}

// SetClock implements Regulator.
func (r *SimRegulator) SetClock(mhz int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clockMHz = mhz
	r.writes = append(r.writes, fmt.Sprintf("clock=%d", mhz))
	return nil
}

// Current returns the programmed voltage and clock.
func (r *SimRegulator) Current() (uv, mhz int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voltageUV, r.clockMHz
}

// Writes returns a copy of the write log.
func (r *SimRegulator) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

// Reset clears the write log.
func (r *SimRegulator) Reset() {
	r.mu.Lock()
	r.writes = nil
	r.mu.Unlock()
}
