package dpm

import (
	"context"
	"errors"
)

// SuspendStart prepares every device and then suspends them.
// It returns the first fatal error; the caller is responsible for rolling
// back with ResumeEnd.
func (m *Manager) SuspendStart(ctx context.Context, msg Message) error {
	if err := m.prepare(ctx, msg); err != nil {
		return err
	}
	return m.suspend(ctx, msg)
}

// prepare walks the registry front to back. A device that returns EAGAIN is
// left ON and skipped for the rest of the transition; any other failure
// aborts the sweep.
func (m *Manager) prepare(ctx context.Context, msg Message) error {
	start := m.phaseStart(PhasePrepare, msg)
	r := m.registry

	var err error
	r.mu.Lock()
	r.transitionStarted = true
	sw := r.newSweep()
	for {
		dev := sw.first()
		if dev == nil {
			break
		}
		r.setStatusLocked(dev, StatusPreparing)
		r.mu.Unlock()

		err = m.prepareDevice(ctx, dev, msg)

		r.mu.Lock()
		if err != nil {
			r.setStatusLocked(dev, StatusOn)
			if errors.Is(err, EAGAIN) {
				m.logger.Debug("device asked to be skipped", "device", dev.name, "verb", msg.Verb())
				sw.retireTail(dev)
				err = nil
				continue
			}
			m.logger.Error("failed to prepare device for power transition",
				"device", dev.name,
				"driver", dev.driverName(),
				"code", CodeOf(err),
				"error", err,
			)
			break
		}
		r.setStatusLocked(dev, StatusSuspending)
		sw.retireTail(dev)
	}
	sw.spliceHead()
	r.mu.Unlock()

	m.phaseEnd(PhasePrepare, msg, start, err)
	return err
}

// prepareDevice takes a runtime reference and runs the prepare callbacks.
// The reference is dropped again if the device does not end up prepared.
func (m *Manager) prepareDevice(ctx context.Context, dev *Device, msg Message) error {
	m.runtime.GetNoResume(dev)
	if m.runtime.Barrier(dev) && dev.WakeupCapable {
		m.runtime.PutSync(dev)
		return &CallbackError{Device: dev.name, Phase: PhasePrepare, Verb: msg.Verb(), Err: EBUSY}
	}

	dev.Lock()
	err := m.runCallbacks(ctx, dev, PhasePrepare, msg, false)
	dev.Unlock()

	if err != nil {
		m.runtime.PutSync(dev)
	}
	return err
}
