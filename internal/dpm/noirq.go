package dpm

import "context"

// SuspendNoIRQ masks interrupts and runs the suspend_noirq callbacks back to
// front. On failure it rolls back with ResumeNoIRQ itself, which unmasks
// interrupts again, and returns the error.
func (m *Manager) SuspendNoIRQ(ctx context.Context, msg Message) error {
	start := m.phaseStart(PhaseSuspendNoIRQ, msg)
	m.irq.SuspendIRQs()

	var err error
	for _, dev := range m.snapshot(true) {
		if dev.Status() != StatusOff || !m.registry.Contains(dev) {
			continue
		}
		if err = m.runCallbacks(ctx, dev, PhaseSuspendNoIRQ, msg, false); err != nil {
			m.deviceError(dev, PhaseSuspendNoIRQ, msg, false, err)
			break
		}
		m.registry.setStatus(dev, StatusOffIRQ)
	}

	m.phaseEnd(PhaseSuspendNoIRQ, msg, start, err)
	if err != nil {
		m.ResumeNoIRQ(ctx, msg.ResumeEvent())
	}
	return err
}

// ResumeNoIRQ runs the resume_noirq callbacks front to back for every device
// that reached OFF_IRQ, then unmasks interrupts. Errors are logged only.
func (m *Manager) ResumeNoIRQ(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)
	start := m.phaseStart(PhaseResumeNoIRQ, msg)
	m.registry.setTransitionStarted(false)

	for _, dev := range m.snapshot(false) {
		if dev.Status() <= StatusOff || !m.registry.Contains(dev) {
			continue
		}
		m.registry.setStatus(dev, StatusOff)
		if err := m.runCallbacks(ctx, dev, PhaseResumeNoIRQ, msg, false); err != nil {
			m.deviceError(dev, PhaseResumeNoIRQ, msg, false, err)
		}
	}

	m.phaseEnd(PhaseResumeNoIRQ, msg, start, nil)
	m.irq.ResumeIRQs()
}

// snapshot returns the registry order without holding the lock afterwards.
func (m *Manager) snapshot(reverse bool) []*Device {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	return m.registry.snapshotLocked(reverse)
}
