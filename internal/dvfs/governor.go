package dvfs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger is the logging interface used by the governor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Regulator applies an operating point to the hardware.
type Regulator interface {
	SetVoltage(uv int) error
	SetClock(mhz int) error
}

// Reason says what caused a step change.
type Reason string

// Step change reasons.
const (
	ReasonUtilisation Reason = "utilisation"
	ReasonControl     Reason = "control"
	ReasonLateResume  Reason = "late_resume"
)

// Change describes an applied step change.
type Change struct {
	From        int       `json:"from"`
	To          int       `json:"to"`
	Step        Step      `json:"step"`
	Utilisation int       `json:"utilisation"`
	Reason      Reason    `json:"reason"`
	At          time.Time `json:"at"`
}

// Observer is called after every applied step change.
type Observer func(Change)

// Option configures a Governor.
type Option func(*Governor)

// WithLogger sets the governor logger.
func WithLogger(l Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithObserver adds a step change observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(g *Governor) { g.observers = append(g.observers, o) }
}

// WithStartStep sets the step the governor assumes at start.
func WithStartStep(step int) Option {
	return func(g *Governor) { g.current = step }
}

// Governor is the reactive step controller.
type Governor struct {
	regulator Regulator
	logger    Logger
	observers []Observer

	work       chan struct{}
	suspended  atomic.Bool
	evaluating atomic.Bool

	mu      sync.Mutex
	table   Table
	current int
	stay    int
	util    int
	control int
}

// New creates a governor over a copy of table.
//
// Parameters:
//   - table: Step table, lowest step first
//   - reg: Regulator that applies voltages and clocks
//   - opts: Optional settings
//
// Returns:
//   - *Governor: Governor ready for Run
//   - error: ErrInvalidTable or ErrNoRegulator
func New(table Table, reg Regulator, opts ...Option) (*Governor, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrNoRegulator
	}
	g := &Governor{
		regulator: reg,
		logger:    noopLogger{},
		work:      make(chan struct{}, 1),
		table:     table.clone(),
		util:      MaxUtilisation,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.current < 0 || g.current >= g.table.Len() {
		return nil, fmt.Errorf("%w: start step %d out of range", ErrInvalidTable, g.current)
	}
	return g, nil
}

// Notify records a utilisation sample and queues an evaluation. Samples
// arriving while an evaluation is already queued replace the pending value.
// Samples are dropped while the governor is suspended.
func (g *Governor) Notify(util int) {
	if g.suspended.Load() {
		return
	}
	if util < 0 {
		util = 0
	} else if util > MaxUtilisation {
		util = MaxUtilisation
	}
	g.mu.Lock()
	g.util = util
	g.mu.Unlock()
	g.kick()
}

func (g *Governor) kick() {
	select {
	case g.work <- struct{}{}:
	default:
	}
}

// Run processes queued evaluations until ctx is cancelled.
func (g *Governor) Run(ctx context.Context) error {
	g.logger.Info("dvfs governor started", "steps", g.table.Len())
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("dvfs governor stopped")
			return nil
		case <-g.work:
			if g.suspended.Load() {
				continue
			}
			if err := g.Evaluate(); err != nil {
				g.logger.Error("dvfs evaluation failed", "error", err)
			}
		}
	}
}

// Evaluate runs one decision against the latest sample.
func (g *Governor) Evaluate() error {
	g.evaluating.Store(true)
	defer g.evaluating.Store(false)

	g.mu.Lock()
	cur := g.current
	next := g.decideNextLocked()
	g.logger.Debug("dvfs evaluate", "utilisation", g.util, "current", cur, "next", next, "stay", g.stay)

	if cur == next || g.stay != 0 {
		if g.stay > 0 {
			g.stay--
		}
		g.mu.Unlock()
		return nil
	}

	reason := ReasonUtilisation
	if g.control != 0 {
		reason = ReasonControl
	}
	if err := g.applyLocked(next, next > cur); err != nil {
		g.mu.Unlock()
		return err
	}
	g.stay = g.table.StayCount[g.current]
	change := g.changeLocked(cur, reason)
	g.mu.Unlock()

	g.emit(change)
	return nil
}

// decideNextLocked picks the target step. A manual control value wins over
// the thresholds.
func (g *Governor) decideNextLocked() int {
	if g.control != 0 {
		return g.controlStep(g.control)
	}
	level := g.current
	th := g.table.Thresholds[level]
	switch {
	case g.util > th.Max && level < g.table.Len()-1:
		level++
	case g.util < th.Min && level > 0:
		level--
	}
	return level
}

// controlStep maps a control value to a step. Values up to the number of
// steps select by position; larger values are clocks in MHz.
func (g *Governor) controlStep(v int) int {
	n := g.table.Len()
	if v <= n {
		return v - 1
	}
	for i, s := range g.table.Steps {
		if v <= s.ClockMHz {
			return i
		}
	}
	return n - 1
}

// applyLocked programs step. Raising voltage must precede raising the clock
// and lowering it must follow lowering the clock.
func (g *Governor) applyLocked(step int, boost bool) error {
	s := g.table.Steps[step]
	if boost {
		if err := g.regulator.SetVoltage(s.VoltageUV); err != nil {
			return fmt.Errorf("dvfs: setting voltage %d: %w", s.VoltageUV, err)
		}
		if err := g.regulator.SetClock(s.ClockMHz); err != nil {
			return fmt.Errorf("dvfs: setting clock %d: %w", s.ClockMHz, err)
		}
	} else {
		if err := g.regulator.SetClock(s.ClockMHz); err != nil {
			return fmt.Errorf("dvfs: setting clock %d: %w", s.ClockMHz, err)
		}
		if err := g.regulator.SetVoltage(s.VoltageUV); err != nil {
			return fmt.Errorf("dvfs: setting voltage %d: %w", s.VoltageUV, err)
		}
	}
	g.current = step
	return nil
}

func (g *Governor) changeLocked(from int, reason Reason) Change {
	return Change{
		From:        from,
		To:          g.current,
		Step:        g.table.Steps[g.current],
		Utilisation: g.util,
		Reason:      reason,
		At:          time.Now().UTC(),
	}
}

func (g *Governor) emit(c Change) {
	g.logger.Info("dvfs step changed",
		"from", c.From, "to", c.To, "clock_mhz", c.Step.ClockMHz,
		"voltage_uv", c.Step.VoltageUV, "reason", string(c.Reason))
	for _, o := range g.observers {
		o(c)
	}
}

// SetControl sets the manual control value. Zero returns to automatic
// control.
func (g *Governor) SetControl(v int) error {
	if v < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidControl, v)
	}
	g.mu.Lock()
	g.control = v
	g.mu.Unlock()
	g.logger.Info("dvfs control set", "value", v)
	if !g.suspended.Load() {
		g.kick()
	}
	return nil
}

// SetVoltages replaces the step voltages. Three values update every step;
// two values update the lower two steps. Each value is clamped to
// [MinVoltageUV, MaxVoltageUV]. New voltages apply from the next change.
func (g *Governor) SetVoltages(uv []int) error {
	if len(uv) != 2 && len(uv) != 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidVoltageCount, len(uv))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, v := range uv {
		if i >= g.table.Len() {
			break
		}
		g.table.Steps[i].VoltageUV = ClampVoltage(v)
	}
	g.logger.Info("dvfs voltages updated", "count", len(uv))
	return nil
}

// LateResume drops the governor back to the lowest step.
func (g *Governor) LateResume() error {
	g.mu.Lock()
	from := g.current
	if err := g.applyLocked(0, false); err != nil {
		g.mu.Unlock()
		return err
	}
	change := g.changeLocked(from, ReasonLateResume)
	g.mu.Unlock()

	g.emit(change)
	return nil
}

// Suspend stops sample processing and waits for an in-flight evaluation.
func (g *Governor) Suspend() {
	g.mu.Lock()
	g.suspended.Store(true)
	g.mu.Unlock()
	select {
	case <-g.work:
	default:
	}
}

// Resume restarts sample processing at the lowest step.
func (g *Governor) Resume() error {
	g.suspended.Store(false)
	return g.LateResume()
}

// Snapshot is a point-in-time view of the governor.
type Snapshot struct {
	Step        int   `json:"step"`
	ClockMHz    int   `json:"clock_mhz"`
	VoltageUV   int   `json:"voltage_uv"`
	Utilisation int   `json:"utilisation"`
	Control     int   `json:"control"`
	Stay        int   `json:"stay"`
	Suspended   bool  `json:"suspended"`
	Running     bool  `json:"running"`
	Table       Table `json:"table"`
}

// Snapshot returns the current state.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.table.Steps[g.current]
	return Snapshot{
		Step:        g.current,
		ClockMHz:    s.ClockMHz,
		VoltageUV:   s.VoltageUV,
		Utilisation: g.util,
		Control:     g.control,
		Stay:        g.stay,
		Suspended:   g.suspended.Load(),
		Running:     g.evaluating.Load(),
		Table:       g.table.clone(),
	}
}
