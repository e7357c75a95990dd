package dpm

import "context"

// ResumeEnd resumes every device and then completes the transition.
// Per-device errors are logged, never returned.
func (m *Manager) ResumeEnd(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)
	m.resume(ctx, msg)
	m.complete(ctx, msg)
}

// resume first schedules every async device that was suspended, then walks
// the registry front to back handling the rest inline. A device still in
// SUSPENDING was prepared but never suspended; it is moved to RESUMING so
// that new children may register below it.
func (m *Manager) resume(ctx context.Context, msg Message) {
	start := m.phaseStart(PhaseResume, msg)
	r := m.registry

	r.mu.Lock()
	scheduled := make(map[*Device]bool)
	for e := r.devices.Front(); e != nil; e = e.Next() {
		dev := e.Value.(*Device)
		if dev.Status() < StatusOff {
			continue
		}
		dev.completion.Reinit()
		if m.isAsync(dev) {
			scheduled[dev] = true
			m.async.Go(func() {
				if err := m.resumeOne(ctx, dev, msg, true); err != nil {
					m.deviceError(dev, PhaseResume, msg, true, err)
				}
			})
		}
	}

	sw := r.newSweep()
	for {
		dev := sw.first()
		if dev == nil {
			break
		}
		switch {
		case scheduled[dev]:
		case dev.Status() >= StatusOff:
			r.mu.Unlock()
			err := m.resumeOne(ctx, dev, msg, false)
			r.mu.Lock()
			if err != nil {
				m.deviceError(dev, PhaseResume, msg, false, err)
			}
		case dev.Status() == StatusSuspending:
			r.setStatusLocked(dev, StatusResuming)
		}
		sw.retireTail(dev)
	}
	sw.spliceHead()
	r.mu.Unlock()

	m.async.Wait()
	m.phaseEnd(PhaseResume, msg, start, nil)
}

// resumeOne waits for dev's parent if it is still off or resuming, then runs
// the resume callbacks. The device's completion always fires on return.
func (m *Manager) resumeOne(ctx context.Context, dev *Device, msg Message, async bool) error {
	defer dev.completion.CompleteAll()

	if p := dev.parent; p != nil {
		if s := p.Status(); s >= StatusOff || s == StatusResuming {
			if err := m.wait(ctx, p, async); err != nil {
				m.logger.Warn("waiting for parent failed", "device", dev.name, "parent", p.name, "error", err)
			}
		}
	}

	dev.Lock()
	defer dev.Unlock()

	m.registry.setStatus(dev, StatusResuming)
	return m.runCallbacks(ctx, dev, PhaseResume, msg, async)
}
