package device

import (
	"fmt"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// Options configures Build.
type Options struct {
	// Recorder receives every simulated call. Build creates one when nil.
	Recorder *Recorder

	// Release unblocks callbacks configured to hang. A nil channel leaves
	// them hung.
	Release <-chan struct{}

	// Attach installs real callbacks as the class provider of the named
	// devices, replacing any simulated class provider.
	Attach map[string]*dpm.Ops
}

// Build creates a dpm device for every definition and adds them to reg in
// manifest order.
//
// Parameters:
//   - reg: Registry the devices are added to
//   - defs: Definitions in discovery order
//   - opts: Recorder, hang release and attached callbacks
//
// Returns:
//   - []*dpm.Device: The devices in registry order
//   - error: If the definitions are invalid or a device cannot be added
func Build(reg *dpm.Registry, defs []Definition, opts Options) ([]*dpm.Device, error) {
	if err := Validate(defs); err != nil {
		return nil, err
	}
	rec := opts.Recorder
	if rec == nil {
		rec = NewRecorder()
	}

	byName := make(map[string]*dpm.Device, len(defs))
	out := make([]*dpm.Device, 0, len(defs))
	for i := range defs {
		d := &defs[i]
		dev := dpm.NewDevice(d.Name, d.Driver, byName[d.Parent])
		dev.AsyncSuspend = d.Async
		dev.WakeupCapable = d.Wakeup
		attachProviders(dev, d, rec, opts.Release)

		if ops, ok := opts.Attach[d.Name]; ok {
			name := d.Driver
			if name == "" {
				name = d.Name
			}
			dev.Class = &dpm.Provider{Name: name, PM: ops}
		}

		if err := reg.Add(dev); err != nil {
			return out, fmt.Errorf("adding device %s: %w", d.Name, err)
		}
		byName[d.Name] = dev
		out = append(out, dev)
	}
	return out, nil
}

func attachProviders(dev *dpm.Device, d *Definition, rec *Recorder, release <-chan struct{}) {
	bus := d.Bus
	if bus == "" && d.Type == "" && d.Class == "" {
		bus = DefaultBus
	}

	beh := newBehaviour(d)
	next := func(level, name string) *simProvider {
		p := &simProvider{name: name, level: level, rec: rec, release: release}
		if beh != nil {
			p.beh = beh
			beh = nil
		}
		return p
	}

	if bus != "" {
		dev.Bus = next(dpm.LevelBus, bus).provider(d.Legacy)
	}
	if d.Type != "" {
		dev.Type = next(dpm.LevelType, d.Type).provider(false)
	}
	if d.Class != "" {
		dev.Class = next(dpm.LevelClass, d.Class).provider(d.Legacy)
	}
}
