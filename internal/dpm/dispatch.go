package dpm

import (
	"context"
	"time"
)

// Callback is a structured per-phase device callback.
type Callback func(ctx context.Context, dev *Device) error

// LegacySuspend is the older single-function suspend form, which receives
// the transition message.
type LegacySuspend func(ctx context.Context, dev *Device, msg Message) error

// Ops holds the structured callbacks a provider supplies. Any of them may
// be nil; a missing callback counts as success.
type Ops struct {
	Prepare      Callback
	Suspend      Callback
	SuspendNoIRQ Callback
	ResumeNoIRQ  Callback
	Resume       Callback
	Complete     Callback
}

func (o *Ops) lookup(p Phase) Callback {
	switch p {
	case PhasePrepare:
		return o.Prepare
	case PhaseSuspend:
		return o.Suspend
	case PhaseSuspendNoIRQ:
		return o.SuspendNoIRQ
	case PhaseResumeNoIRQ:
		return o.ResumeNoIRQ
	case PhaseResume:
		return o.Resume
	case PhaseComplete:
		return o.Complete
	}
	return nil
}

// Provider is a bus, type or class that supplies callbacks for a device.
//
// When PM is set it is used exclusively. Otherwise the legacy Suspend and
// Resume forms are consulted, for bus and class providers only.
type Provider struct {
	Name    string
	PM      *Ops
	Suspend LegacySuspend
	Resume  Callback
}

// Provider levels as they appear in logs and reports.
const (
	LevelBus   = "bus"
	LevelType  = "type"
	LevelClass = "class"
)

type slot struct {
	level    string
	provider *Provider
	legacy   bool
}

// slots returns the device's providers in the order phase p consults them.
func (d *Device) slots(p Phase) [3]slot {
	bus := slot{level: LevelBus, provider: d.Bus, legacy: true}
	typ := slot{level: LevelType, provider: d.Type}
	class := slot{level: LevelClass, provider: d.Class, legacy: true}

	switch p {
	case PhaseSuspend, PhaseSuspendNoIRQ, PhaseComplete:
		return [3]slot{class, typ, bus}
	default:
		return [3]slot{bus, typ, class}
	}
}

// resolve picks the callback for phase p, reporting whether it is a legacy form.
func (s slot) resolve(p Phase, msg Message) (Callback, bool) {
	if s.provider == nil {
		return nil, false
	}
	if s.provider.PM != nil {
		return s.provider.PM.lookup(p), false
	}
	if !s.legacy {
		return nil, false
	}
	switch p {
	case PhaseSuspend:
		if legacy := s.provider.Suspend; legacy != nil {
			return func(ctx context.Context, dev *Device) error {
				return legacy(ctx, dev, msg)
			}, true
		}
	case PhaseResume:
		if s.provider.Resume != nil {
			return s.provider.Resume, true
		}
	}
	return nil, false
}

// runCallbacks invokes the device's callbacks for one phase. The first
// failure stops the remaining providers and is returned as a *CallbackError.
// It never touches the device status.
func (m *Manager) runCallbacks(ctx context.Context, dev *Device, phase Phase, msg Message, async bool) error {
	for _, s := range dev.slots(phase) {
		cb, legacy := s.resolve(phase, msg)
		if cb == nil {
			continue
		}

		start := time.Now()
		err := cb(ctx, dev)
		elapsed := time.Since(start)

		m.logger.Debug("device callback",
			"device", dev.name,
			"phase", string(phase),
			"level", s.level,
			"provider", s.provider.Name,
			"legacy", legacy,
			"async", async,
			"duration_us", elapsed.Microseconds(),
			"code", CodeOf(err),
		)
		m.report(Report{
			Kind:     ReportCallback,
			Phase:    phase,
			Device:   dev.name,
			Driver:   dev.driver,
			Level:    s.level,
			Verb:     msg.Verb(),
			Async:    async,
			Duration: elapsed,
			Code:     CodeOf(err),
			Error:    errString(err),
		})

		if err != nil {
			return &CallbackError{
				Device: dev.name,
				Phase:  phase,
				Verb:   msg.Verb(),
				Level:  s.level,
				Err:    err,
			}
		}
	}
	return nil
}
