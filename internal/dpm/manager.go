package dpm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the orchestrator settings.
type Config struct {
	// Async enables asynchronous handling of devices that opt in.
	Async bool
	// Workers bounds the async worker pool.
	Workers int
	// WatchdogTimeout bounds a single device suspend attempt. Zero disables
	// the watchdog.
	WatchdogTimeout time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Async:           true,
		Workers:         16,
		WatchdogTimeout: DefaultWatchdogTimeout,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager and its registry.
func WithLogger(l Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRegistry uses an existing registry instead of creating one.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithRuntimePM sets the runtime power-management collaborator.
func WithRuntimePM(rt RuntimePM) Option {
	return func(m *Manager) { m.runtime = rt }
}

// WithIRQController sets the interrupt controller used by the noirq phases.
func WithIRQController(c IRQController) Option {
	return func(m *Manager) { m.irq = c }
}

// WithTracer sets the resume trace collaborator.
func WithTracer(t Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithSink adds a report sink. It may be given more than once.
func WithSink(s Sink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, s) }
}

// WithHistory persists every finished transition to h.
func WithHistory(h HistoryStore) Option {
	return func(m *Manager) { m.history = h }
}

// WithWatchdogExpire replaces the fatal watchdog expiry handler.
func WithWatchdogExpire(fn ExpireFunc) Option {
	return func(m *Manager) { m.expire = fn }
}

// Manager runs power transitions over a Registry.
type Manager struct {
	registry *Registry
	async    *asyncRunner
	watchdog *Watchdog
	expire   ExpireFunc
	runtime  RuntimePM
	irq      IRQController
	tracer   Tracer
	sinks    MultiSink
	history  HistoryStore
	logger   Logger

	asyncEnabled atomic.Bool
	asyncErr     errorSlot
	busy         atomic.Bool

	mu      sync.Mutex // guards current
	current *Transition
}

// New creates a Manager.
//
// Parameters:
//   - cfg: Orchestrator settings; Workers must be positive
//   - opts: Collaborators and sinks
//
// Returns:
//   - *Manager: Manager ready for use; call Close when done
//   - error: If the settings are invalid or the worker pool cannot be created
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.WatchdogTimeout < 0 {
		return nil, fmt.Errorf("%w: negative watchdog timeout", ErrInvalidConfig)
	}

	m := &Manager{
		runtime: NewRuntimeRefs(),
		irq:     &IRQMask{},
		tracer:  &TraceSwitch{},
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry()
		m.registry.SetLogger(m.logger)
	}

	m.watchdog = NewWatchdog(cfg.WatchdogTimeout, m.expire, m.logger)
	runner, err := newAsyncRunner(cfg.Workers, m.logger)
	if err != nil {
		return nil, err
	}
	m.async = runner
	m.asyncEnabled.Store(cfg.Async)
	return m, nil
}

// Close releases the worker pool.
func (m *Manager) Close() {
	m.async.Release()
}

// Registry returns the device registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// SetAsync enables or disables asynchronous device handling.
func (m *Manager) SetAsync(enabled bool) {
	m.asyncEnabled.Store(enabled)
}

// AsyncEnabled reports whether asynchronous handling is enabled.
func (m *Manager) AsyncEnabled() bool {
	return m.asyncEnabled.Load()
}

// Busy reports whether Enter is running.
func (m *Manager) Busy() bool {
	return m.busy.Load()
}

// WatchdogTimeout returns the configured watchdog bound.
func (m *Manager) WatchdogTimeout() time.Duration {
	return m.watchdog.Timeout()
}

// WaitForDevice makes sub wait until dev has finished its current phase.
// It returns the first error reported by the running suspend phase, if any.
func (m *Manager) WaitForDevice(ctx context.Context, sub, dev *Device) error {
	if err := m.wait(ctx, dev, sub.AsyncSuspend); err != nil {
		return err
	}
	return m.asyncErr.get()
}

func (m *Manager) isAsync(dev *Device) bool {
	return dev.AsyncSuspend && m.asyncEnabled.Load() && !m.tracer.ResumeTraceEnabled()
}

// wait blocks on dev's completion when either side may be running
// asynchronously. Synchronous devices are already ordered by the sweep.
func (m *Manager) wait(ctx context.Context, dev *Device, async bool) error {
	if dev == nil {
		return nil
	}
	if async || (m.asyncEnabled.Load() && dev.AsyncSuspend) {
		return dev.completion.Wait(ctx)
	}
	return nil
}

func (m *Manager) report(r Report) {
	if len(m.sinks) == 0 {
		return
	}
	m.mu.Lock()
	if m.current != nil {
		r.TransitionID = m.current.ID
	}
	m.mu.Unlock()
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	m.sinks.Report(r)
}

func (m *Manager) phaseStart(p Phase, msg Message) time.Time {
	m.report(Report{Kind: ReportPhaseStart, Phase: p, Verb: msg.Verb()})
	return time.Now()
}

// phaseEnd logs the sweep time and records the outcome on the running
// transition.
func (m *Manager) phaseEnd(p Phase, msg Message, start time.Time, err error) {
	elapsed := time.Since(start)
	if err == nil {
		m.logger.Info("phase of devices complete",
			"phase", string(p),
			"verb", msg.Verb(),
			"duration_ms", float64(elapsed.Microseconds())/1000,
		)
	}

	m.mu.Lock()
	if m.current != nil {
		m.current.Phases = append(m.current.Phases, PhaseResult{
			Phase:    p,
			Verb:     msg.Verb(),
			Duration: elapsed,
			Error:    errString(err),
		})
	}
	m.mu.Unlock()

	m.report(Report{
		Kind:     ReportPhaseEnd,
		Phase:    p,
		Verb:     msg.Verb(),
		Duration: elapsed,
		Code:     CodeOf(err),
		Error:    errString(err),
	})
}

// deviceError logs a per-device failure in the form used by every phase.
func (m *Manager) deviceError(dev *Device, p Phase, msg Message, async bool, err error) {
	info := p.logSuffix()
	if async {
		info += " async"
	}
	m.logger.Error("device failed to "+msg.Verb()+info,
		"device", dev.name,
		"driver", dev.driverName(),
		"phase", string(p),
		"code", CodeOf(err),
		"error", err,
	)
}

// Enter drives the registry through a complete sleep transition.
//
// It runs prepare and suspend, then suspend_noirq, then calls sleep. After
// that it resumes with the matching wake message. If a suspend-direction
// phase fails, the devices are rolled back through the resume direction and
// the first error is returned.
//
// Parameters:
//   - ctx: Bounds waits in the suspend direction; resume always runs to completion
//   - msg: A sleep message such as MsgSuspend or MsgHibernate
//   - sleep: Called while all devices are off; may be nil
//
// Returns:
//   - *Transition: The record of the transition, also when it failed
//   - error: ErrInProgress, the first fatal phase error, or the sleep error
func (m *Manager) Enter(ctx context.Context, msg Message, sleep func(context.Context) error) (*Transition, error) {
	if !msg.Sleeping() {
		return nil, fmt.Errorf("%w: %s does not start a transition", ErrInvalidEvent, msg.Verb())
	}
	if !m.busy.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer m.busy.Store(false)

	tr := &Transition{
		ID:        uuid.NewString(),
		Event:     msg.Verb(),
		StartedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.current = tr
	m.mu.Unlock()

	m.logger.Info("power transition starting",
		"transition_id", tr.ID,
		"event", msg.Verb(),
		"devices", m.registry.Len(),
		"async", m.asyncEnabled.Load(),
	)
	m.report(Report{Kind: ReportTransitionStart, Verb: msg.Verb()})

	err := m.enter(ctx, msg, sleep, tr)
	m.finish(ctx, tr, err)
	return tr, err
}

func (m *Manager) enter(ctx context.Context, msg Message, sleep func(context.Context) error, tr *Transition) error {
	if err := m.SuspendStart(ctx, msg); err != nil {
		tr.RolledBack = true
		m.ResumeEnd(ctx, msg.ResumeEvent())
		return err
	}

	if err := m.SuspendNoIRQ(ctx, msg); err != nil {
		tr.RolledBack = true
		m.ResumeEnd(ctx, msg.ResumeEvent())
		return err
	}

	var sleepErr error
	if sleep != nil {
		if sleepErr = sleep(ctx); sleepErr != nil {
			m.logger.Error("system sleep failed", "event", msg.Verb(), "error", sleepErr)
		}
	}

	wake := msg.WakeEvent()
	m.ResumeNoIRQ(ctx, wake)
	m.ResumeEnd(ctx, wake)

	if sleepErr != nil {
		return fmt.Errorf("entering %s: %w", msg.Verb(), sleepErr)
	}
	return nil
}

func (m *Manager) finish(ctx context.Context, tr *Transition, err error) {
	m.mu.Lock()
	tr.FinishedAt = time.Now().UTC()
	tr.Result = ResultOK
	if err != nil {
		tr.Result = ResultFailed
		tr.Error = err.Error()
		tr.FailedDevice = FailedDevice(err)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("power transition failed",
			"transition_id", tr.ID,
			"event", tr.Event,
			"failed_device", tr.FailedDevice,
			"rolled_back", tr.RolledBack,
			"error", err,
		)
	} else {
		m.logger.Info("power transition complete",
			"transition_id", tr.ID,
			"event", tr.Event,
			"duration_ms", tr.Duration().Milliseconds(),
		)
	}

	m.report(Report{
		Kind:     ReportTransitionEnd,
		Verb:     tr.Event,
		Device:   tr.FailedDevice,
		Duration: tr.Duration(),
		Code:     CodeOf(err),
		Error:    errString(err),
	})

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if m.history != nil {
		if saveErr := m.history.Save(context.WithoutCancel(ctx), tr); saveErr != nil {
			m.logger.Warn("failed to save transition history", "transition_id", tr.ID, "error", saveErr)
		}
	}
}
