package dvfs

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// ─── Helpers ────────────────────────────────────────────────────────

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) observe(c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) list() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change(nil), l.changes...)
}

func newTestGovernor(t *testing.T, opts ...Option) (*Governor, *SimRegulator) {
	t.Helper()
	table := DefaultTable()
	reg := NewSimRegulator(table.Steps[0])
	g, err := New(table, reg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g, reg
}

func evaluate(t *testing.T, g *Governor, util int) {
	t.Helper()
	g.Notify(util)
	if err := g.Evaluate(); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
}

type failingRegulator struct {
	err error
}

func (r failingRegulator) SetVoltage(int) error { return nil }
func (r failingRegulator) SetClock(int) error   { return r.err }

// ─── Table ──────────────────────────────────────────────────────────

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	clocks := []int{66, 160, 267}
	volts := []int{900000, 950000, 1000000}
	for i, s := range table.Steps {
		if s.ClockMHz != clocks[i] || s.VoltageUV != volts[i] || s.FreqHz != 1000000 {
			t.Errorf("step %d = %+v", i, s)
		}
	}

	want := []Threshold{{0, 216}, {63, 216}, {63, 255}}
	if !reflect.DeepEqual(table.Thresholds, want) {
		t.Errorf("Thresholds = %v, want %v", table.Thresholds, want)
	}
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
	}{
		{"empty", func(tb *Table) { *tb = Table{} }},
		{"threshold count", func(tb *Table) { tb.Thresholds = tb.Thresholds[:2] }},
		{"stay count", func(tb *Table) { tb.StayCount = nil }},
		{"clock not increasing", func(tb *Table) { tb.Steps[1].ClockMHz = 66 }},
		{"threshold inverted", func(tb *Table) { tb.Thresholds[1] = Threshold{Min: 200, Max: 100} }},
		{"threshold above scale", func(tb *Table) { tb.Thresholds[2].Max = 300 }},
		{"negative stay", func(tb *Table) { tb.StayCount[0] = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultTable()
			tt.mutate(&table)
			if err := table.Validate(); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("Validate() error = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(DefaultTable(), nil); !errors.Is(err, ErrNoRegulator) {
		t.Errorf("nil regulator error = %v", err)
	}
	reg := NewSimRegulator(Step{})
	if _, err := New(DefaultTable(), reg, WithStartStep(3)); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("bad start step error = %v", err)
	}
}

// ─── Decisions ──────────────────────────────────────────────────────

func TestGovernor_StepsUpWithStayCount(t *testing.T) {
	g, reg := newTestGovernor(t)

	evaluate(t, g, 250)
	if got := g.Snapshot().Step; got != 1 {
		t.Fatalf("step after first high sample = %d, want 1", got)
	}

	// The stay count holds the new step for one sample.
	evaluate(t, g, 250)
	if got := g.Snapshot().Step; got != 1 {
		t.Fatalf("step during stay = %d, want 1", got)
	}

	evaluate(t, g, 250)
	if got := g.Snapshot().Step; got != 2 {
		t.Fatalf("step after stay = %d, want 2", got)
	}

	want := []string{"voltage=950000", "clock=160", "voltage=1000000", "clock=267"}
	if got := reg.Writes(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}
}

func TestGovernor_StepsDownClockFirst(t *testing.T) {
	g, reg := newTestGovernor(t, WithStartStep(2))

	evaluate(t, g, 10)
	if got := g.Snapshot().Step; got != 1 {
		t.Fatalf("step = %d, want 1", got)
	}
	want := []string{"clock=160", "voltage=950000"}
	if got := reg.Writes(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}
}

func TestGovernor_HoldsInsideThresholds(t *testing.T) {
	g, reg := newTestGovernor(t, WithStartStep(1))

	for _, util := range []int{63, 100, 216} {
		evaluate(t, g, util)
	}
	if got := g.Snapshot().Step; got != 1 {
		t.Errorf("step = %d, want 1", got)
	}
	if len(reg.Writes()) != 0 {
		t.Errorf("unexpected writes %v", reg.Writes())
	}
}

func TestGovernor_EdgeStepsDoNotOverflow(t *testing.T) {
	g, _ := newTestGovernor(t)
	evaluate(t, g, 0)
	if got := g.Snapshot().Step; got != 0 {
		t.Errorf("bottom step moved to %d", got)
	}

	g, _ = newTestGovernor(t, WithStartStep(2))
	evaluate(t, g, 255)
	if got := g.Snapshot().Step; got != 2 {
		t.Errorf("top step moved to %d", got)
	}
}

func TestGovernor_NotifyClampsSample(t *testing.T) {
	g, _ := newTestGovernor(t)
	g.Notify(-4)
	if got := g.Snapshot().Utilisation; got != 0 {
		t.Errorf("utilisation = %d, want 0", got)
	}
	g.Notify(1000)
	if got := g.Snapshot().Utilisation; got != MaxUtilisation {
		t.Errorf("utilisation = %d, want %d", got, MaxUtilisation)
	}
}

func TestGovernor_RegulatorFailureKeepsStep(t *testing.T) {
	log := &changeLog{}
	boom := errors.New("boom")
	g, err := New(DefaultTable(), failingRegulator{err: boom}, WithObserver(log.observe), WithStartStep(2))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	g.Notify(0)
	if err := g.Evaluate(); !errors.Is(err, boom) {
		t.Fatalf("Evaluate() error = %v, want boom", err)
	}
	if got := g.Snapshot().Step; got != 2 {
		t.Errorf("step = %d, want 2", got)
	}
	if len(log.list()) != 0 {
		t.Errorf("observer called on failure")
	}
}

// ─── Manual control ─────────────────────────────────────────────────

func TestGovernor_ControlStep(t *testing.T) {
	g, _ := newTestGovernor(t)
	tests := []struct {
		value int
		want  int
	}{
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 0},
		{66, 0},
		{67, 1},
		{160, 1},
		{161, 2},
		{267, 2},
		{500, 2},
	}
	for _, tt := range tests {
		if got := g.controlStep(tt.value); got != tt.want {
			t.Errorf("controlStep(%d) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestGovernor_ControlOverridesUtilisation(t *testing.T) {
	log := &changeLog{}
	g, _ := newTestGovernor(t, WithObserver(log.observe))

	if err := g.SetControl(2); err != nil {
		t.Fatalf("SetControl() error = %v", err)
	}
	evaluate(t, g, 0)
	if got := g.Snapshot().Step; got != 1 {
		t.Fatalf("step = %d, want 1", got)
	}

	changes := log.list()
	if len(changes) != 1 || changes[0].Reason != ReasonControl {
		t.Fatalf("changes = %+v", changes)
	}

	// Back to automatic: the stay count drains first, then low load steps down.
	if err := g.SetControl(0); err != nil {
		t.Fatalf("SetControl(0) error = %v", err)
	}
	evaluate(t, g, 0)
	evaluate(t, g, 0)
	if got := g.Snapshot().Step; got != 0 {
		t.Errorf("step = %d, want 0", got)
	}
}

func TestGovernor_SetControlRejectsNegative(t *testing.T) {
	g, _ := newTestGovernor(t)
	if err := g.SetControl(-1); !errors.Is(err, ErrInvalidControl) {
		t.Errorf("SetControl(-1) error = %v", err)
	}
}

// ─── Voltages ───────────────────────────────────────────────────────

func TestGovernor_SetVoltages(t *testing.T) {
	tests := []struct {
		name    string
		in      []int
		want    []int
		wantErr error
	}{
		{"three clamped", []int{700000, 1300000, 1000000}, []int{800000, 1200000, 1000000}, nil},
		{"two leaves top step", []int{850000, 870000}, []int{850000, 870000, 1000000}, nil},
		{"one value", []int{900000}, []int{900000, 950000, 1000000}, ErrInvalidVoltageCount},
		{"four values", []int{1, 2, 3, 4}, []int{900000, 950000, 1000000}, ErrInvalidVoltageCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGovernor(t)
			err := g.SetVoltages(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetVoltages() error = %v, want %v", err, tt.wantErr)
			}
			snap := g.Snapshot()
			for i, s := range snap.Table.Steps {
				if s.VoltageUV != tt.want[i] {
					t.Errorf("step %d voltage = %d, want %d", i, s.VoltageUV, tt.want[i])
				}
			}
		})
	}
}

func TestClampVoltage(t *testing.T) {
	for in, want := range map[int]int{0: MinVoltageUV, 950000: 950000, 5000000: MaxVoltageUV} {
		if got := ClampVoltage(in); got != want {
			t.Errorf("ClampVoltage(%d) = %d, want %d", in, got, want)
		}
	}
}

// ─── Sleep integration ──────────────────────────────────────────────

func TestGovernor_LateResume(t *testing.T) {
	log := &changeLog{}
	g, reg := newTestGovernor(t, WithStartStep(2), WithObserver(log.observe))

	if err := g.LateResume(); err != nil {
		t.Fatalf("LateResume() error = %v", err)
	}
	if got := g.Snapshot().Step; got != 0 {
		t.Errorf("step = %d, want 0", got)
	}
	want := []string{"clock=66", "voltage=900000"}
	if got := reg.Writes(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}
	changes := log.list()
	if len(changes) != 1 || changes[0].Reason != ReasonLateResume || changes[0].From != 2 {
		t.Errorf("changes = %+v", changes)
	}
}

func TestGovernor_PowerOps(t *testing.T) {
	g, _ := newTestGovernor(t, WithStartStep(1))
	ops := g.PowerOps()
	ctx := context.Background()

	if err := ops.Suspend(ctx, nil); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	g.Notify(10)
	snap := g.Snapshot()
	if !snap.Suspended {
		t.Error("Suspended = false after suspend")
	}
	if snap.Utilisation != MaxUtilisation {
		t.Errorf("sample accepted while suspended: %d", snap.Utilisation)
	}

	if err := ops.Resume(ctx, nil); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	snap = g.Snapshot()
	if snap.Suspended || snap.Step != 0 {
		t.Errorf("after resume: suspended=%v step=%d", snap.Suspended, snap.Step)
	}
}

// ─── Run loop ───────────────────────────────────────────────────────

func TestGovernor_RunProcessesNotifications(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	g.Notify(250)
	deadline := time.After(2 * time.Second)
	for g.Snapshot().Step != 1 {
		select {
		case <-deadline:
			t.Fatal("governor did not step up")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
