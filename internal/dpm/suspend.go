package dpm

import (
	"context"
	"errors"
)

// suspend walks the registry back to front so children go before parents.
// Async devices are handed to the worker pool; the sweep stops scheduling
// once any device has failed and then waits for all outstanding work.
func (m *Manager) suspend(ctx context.Context, msg Message) error {
	start := m.phaseStart(PhaseSuspend, msg)
	r := m.registry
	m.asyncErr.reset()

	var err error
	r.mu.Lock()
	sw := r.newSweep()
	for {
		dev := sw.last()
		if dev == nil {
			break
		}
		if dev.Status() != StatusSuspending {
			sw.retireHead(dev)
			continue
		}
		r.mu.Unlock()

		err = m.suspendDevice(ctx, dev, msg)

		r.mu.Lock()
		if err != nil {
			m.deviceError(dev, PhaseSuspend, msg, false, err)
			break
		}
		sw.retireHead(dev)
		if m.asyncErr.get() != nil {
			break
		}
	}
	sw.spliceTail()
	r.mu.Unlock()

	m.async.Wait()
	if first := m.asyncErr.get(); first != nil {
		err = first
	}

	m.phaseEnd(PhaseSuspend, msg, start, err)
	return err
}

// suspendDevice runs dev inline or schedules it on the pool.
func (m *Manager) suspendDevice(ctx context.Context, dev *Device, msg Message) error {
	dev.completion.Reinit()

	if m.isAsync(dev) {
		m.async.Go(func() {
			if err := m.suspendOne(ctx, dev, msg, true); err != nil {
				m.deviceError(dev, PhaseSuspend, msg, true, err)
			}
		})
		return nil
	}
	return m.suspendOne(ctx, dev, msg, false)
}

// suspendOne waits for dev's children and runs its suspend callbacks under
// the watchdog. A failure is recorded in the phase error slot before the
// device's completion fires, so a waiting parent always observes it.
func (m *Manager) suspendOne(ctx context.Context, dev *Device, msg Message, async bool) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, ErrAborted) {
			m.asyncErr.set(err)
		}
		dev.completion.CompleteAll()
	}()

	if err := dev.ForEachChild(func(child *Device) error {
		return m.wait(ctx, child, async)
	}); err != nil {
		return &CallbackError{Device: dev.name, Phase: PhaseSuspend, Verb: msg.Verb(), Err: err}
	}

	disarm := m.watchdog.Arm(dev)
	defer disarm()

	dev.Lock()
	defer dev.Unlock()

	if m.asyncErr.get() != nil {
		return ErrAborted
	}

	if err := m.runCallbacks(ctx, dev, PhaseSuspend, msg, async); err != nil {
		return err
	}
	m.registry.setStatus(dev, StatusOff)
	return nil
}
