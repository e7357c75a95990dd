package main

import (
	"fmt"

	"github.com/drowningchild/dpmcore/internal/device"
	"github.com/drowningchild/dpmcore/internal/dpm"
	"github.com/drowningchild/dpmcore/internal/dvfs"
	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
	"github.com/drowningchild/dpmcore/internal/infrastructure/logging"
)

// stack is the assembled power management core: the orchestrator, the
// devices built from the manifest and, when enabled, the DVFS governor
// attached to one of them.
type stack struct {
	manager   *dpm.Manager
	devices   []*dpm.Device
	recorder  *device.Recorder
	governor  *dvfs.Governor
	regulator *dvfs.SimRegulator
}

// stackOptions carries the pieces that differ between serve and cycle.
type stackOptions struct {
	sink      dpm.Sink
	history   dpm.HistoryStore
	observers []dvfs.Observer
	expire    dpm.ExpireFunc
	release   <-chan struct{}
	trace     bool
}

// buildStack loads the manifest and wires the manager, devices and
// governor.
//
// Parameters:
//   - cfg: Loaded configuration
//   - log: Root logger; components get their own child logger
//   - opts: Sinks, history and hooks
//
// Returns:
//   - *stack: Ready to run; call close when done
//   - error: If the manifest, the governor or the manager cannot be set up
func buildStack(cfg *config.Config, log *logging.Logger, opts stackOptions) (*stack, error) {
	defs, err := device.LoadManifest(cfg.Power.Manifest)
	if err != nil {
		return nil, fmt.Errorf("loading device manifest: %w", err)
	}

	s := &stack{recorder: device.NewRecorder()}
	attach := map[string]*dpm.Ops{}

	if cfg.DVFS.Enabled {
		if !hasDevice(defs, cfg.DVFS.Device) {
			return nil, fmt.Errorf("dvfs device %q is not in the manifest", cfg.DVFS.Device)
		}
		if err := s.buildGovernor(cfg.DVFS, log, opts.observers); err != nil {
			return nil, err
		}
		attach[cfg.DVFS.Device] = s.governor.PowerOps()
	}

	tracer := &dpm.TraceSwitch{}
	tracer.Set(opts.trace || cfg.Power.Trace)

	mopts := []dpm.Option{
		dpm.WithLogger(log.Component("dpm")),
		dpm.WithTracer(tracer),
	}
	if opts.sink != nil {
		mopts = append(mopts, dpm.WithSink(opts.sink))
	}
	if opts.history != nil {
		mopts = append(mopts, dpm.WithHistory(opts.history))
	}
	if opts.expire != nil {
		mopts = append(mopts, dpm.WithWatchdogExpire(opts.expire))
	}

	s.manager, err = dpm.New(dpm.Config{
		Async:           cfg.Power.Async,
		Workers:         cfg.Power.Workers,
		WatchdogTimeout: cfg.Power.WatchdogTimeout,
	}, mopts...)
	if err != nil {
		return nil, fmt.Errorf("creating power manager: %w", err)
	}

	s.devices, err = device.Build(s.manager.Registry(), defs, device.Options{
		Recorder: s.recorder,
		Release:  opts.release,
		Attach:   attach,
	})
	if err != nil {
		s.manager.Close()
		return nil, fmt.Errorf("building devices: %w", err)
	}

	log.Info("power stack ready",
		"devices", len(s.devices),
		"async", cfg.Power.Async,
		"watchdog_timeout", cfg.Power.WatchdogTimeout,
		"dvfs", cfg.DVFS.Enabled,
	)
	return s, nil
}

// buildGovernor creates the governor over the default step table and
// applies the configured voltage overrides and manual control.
func (s *stack) buildGovernor(cfg config.DVFSConfig, log *logging.Logger, observers []dvfs.Observer) error {
	table := dvfs.DefaultTable()
	s.regulator = dvfs.NewSimRegulator(table.Steps[0])

	gopts := []dvfs.Option{dvfs.WithLogger(log.Component("dvfs"))}
	for _, o := range observers {
		gopts = append(gopts, dvfs.WithObserver(o))
	}

	g, err := dvfs.New(table, s.regulator, gopts...)
	if err != nil {
		return fmt.Errorf("creating dvfs governor: %w", err)
	}
	if len(cfg.Voltages) > 0 {
		if err := g.SetVoltages(cfg.Voltages); err != nil {
			return fmt.Errorf("applying dvfs voltages: %w", err)
		}
	}
	if cfg.Control != 0 {
		if err := g.SetControl(cfg.Control); err != nil {
			return fmt.Errorf("applying dvfs control: %w", err)
		}
	}
	s.governor = g
	return nil
}

func (s *stack) close() {
	if s.manager != nil {
		s.manager.Close()
	}
}

func hasDevice(defs []device.Definition, name string) bool {
	for _, d := range defs {
		if d.Name == name {
			return true
		}
	}
	return false
}
