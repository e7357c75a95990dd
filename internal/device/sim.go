package device

import (
	"context"
	"time"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// behaviour is the configured reaction of a simulated driver.
type behaviour struct {
	latency map[dpm.Phase]time.Duration
	fail    map[dpm.Phase]dpm.Errno
	hang    dpm.Phase
}

func newBehaviour(d *Definition) *behaviour {
	b := &behaviour{
		latency: make(map[dpm.Phase]time.Duration, len(d.Latency)),
		fail:    make(map[dpm.Phase]dpm.Errno, len(d.Fail)),
	}
	for name, lat := range d.Latency {
		if p, ok := parsePhase(name); ok {
			b.latency[p] = lat
		}
	}
	for name, code := range d.Fail {
		p, ok := parsePhase(name)
		if !ok {
			continue
		}
		if errno, ok := dpm.ParseErrno(code); ok {
			b.fail[p] = errno
		}
	}
	if p, ok := parsePhase(d.Hang); ok {
		b.hang = p
	}
	return b
}

// simProvider is one callback level of a simulated device. Only the
// device's primary provider carries a behaviour; the others just record.
type simProvider struct {
	name    string
	level   string
	rec     *Recorder
	beh     *behaviour
	release <-chan struct{}
}

func (p *simProvider) call(_ context.Context, dev *dpm.Device, phase dpm.Phase) error {
	start := time.Now()
	var err error
	if p.beh != nil {
		if lat := p.beh.latency[phase]; lat > 0 {
			time.Sleep(lat)
		}
		if p.beh.hang == phase {
			// A nil release channel blocks forever.
			<-p.release
		}
		if code, ok := p.beh.fail[phase]; ok {
			err = code
		}
	}

	c := Call{
		Device:   dev.Name(),
		Phase:    phase,
		Level:    p.level,
		Provider: p.name,
		Start:    start,
		End:      time.Now(),
	}
	if err != nil {
		c.Err = err.Error()
	}
	p.rec.add(c)
	return err
}

func (p *simProvider) callback(phase dpm.Phase) dpm.Callback {
	return func(ctx context.Context, dev *dpm.Device) error {
		return p.call(ctx, dev, phase)
	}
}

func (p *simProvider) provider(legacy bool) *dpm.Provider {
	if legacy {
		return &dpm.Provider{
			Name: p.name,
			Suspend: func(ctx context.Context, dev *dpm.Device, _ dpm.Message) error {
				return p.call(ctx, dev, dpm.PhaseSuspend)
			},
			Resume: p.callback(dpm.PhaseResume),
		}
	}
	return &dpm.Provider{
		Name: p.name,
		PM: &dpm.Ops{
			Prepare:      p.callback(dpm.PhasePrepare),
			Suspend:      p.callback(dpm.PhaseSuspend),
			SuspendNoIRQ: p.callback(dpm.PhaseSuspendNoIRQ),
			ResumeNoIRQ:  p.callback(dpm.PhaseResumeNoIRQ),
			Resume:       p.callback(dpm.PhaseResume),
			Complete:     p.callback(dpm.PhaseComplete),
		},
	}
}
