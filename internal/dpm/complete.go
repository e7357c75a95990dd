package dpm

import "context"

// complete walks the registry back to front, returning every device that
// took part in the transition to ON and dropping the runtime reference
// taken in prepare. Devices already ON are left alone.
func (m *Manager) complete(ctx context.Context, msg Message) {
	start := m.phaseStart(PhaseComplete, msg)
	r := m.registry

	r.mu.Lock()
	r.transitionStarted = false
	sw := r.newSweep()
	for {
		dev := sw.last()
		if dev == nil {
			break
		}
		if dev.Status() > StatusOn {
			r.setStatusLocked(dev, StatusOn)
			r.mu.Unlock()

			dev.Lock()
			if err := m.runCallbacks(ctx, dev, PhaseComplete, msg, false); err != nil {
				m.deviceError(dev, PhaseComplete, msg, false, err)
			}
			dev.Unlock()
			m.runtime.PutSync(dev)

			r.mu.Lock()
		}
		sw.retireHead(dev)
	}
	sw.spliceHead()
	r.mu.Unlock()

	m.phaseEnd(PhaseComplete, msg, start, nil)
}
