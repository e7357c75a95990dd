package dvfs

import "fmt"

// Voltage limits applied by SetVoltages, in microvolts.
const (
	MinVoltageUV = 800000
	MaxVoltageUV = 1200000
)

// MaxUtilisation is the top of the utilisation scale.
const MaxUtilisation = 255

// Step is one operating point.
type Step struct {
	ClockMHz  int `json:"clock_mhz"`
	FreqHz    int `json:"freq_hz"`
	VoltageUV int `json:"voltage_uv"`
}

// Threshold bounds the utilisation a step is happy with. Below Min the
// governor steps down, above Max it steps up.
type Threshold struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Table is the ordered set of steps, lowest first.
type Table struct {
	Steps      []Step      `json:"steps"`
	Thresholds []Threshold `json:"thresholds"`
	// StayCount is the number of samples to hold a step after moving to it.
	StayCount []int `json:"stay_count"`
}

func pct(p int) int { return MaxUtilisation * p / 100 }

// DefaultTable returns the three-step GPU table.
func DefaultTable() Table {
	return Table{
		Steps: []Step{
			{ClockMHz: 66, FreqHz: 1000000, VoltageUV: 900000},
			{ClockMHz: 160, FreqHz: 1000000, VoltageUV: 950000},
			{ClockMHz: 267, FreqHz: 1000000, VoltageUV: 1000000},
		},
		Thresholds: []Threshold{
			{Min: pct(0), Max: pct(85)},
			{Min: pct(25), Max: pct(85)},
			{Min: pct(25), Max: pct(100)},
		},
		StayCount: []int{1, 1, 1},
	}
}

// Len returns the number of steps.
func (t Table) Len() int { return len(t.Steps) }

// Validate checks that the table is usable.
func (t Table) Validate() error {
	n := len(t.Steps)
	if n == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidTable)
	}
	if len(t.Thresholds) != n || len(t.StayCount) != n {
		return fmt.Errorf("%w: %d steps, %d thresholds, %d stay counts",
			ErrInvalidTable, n, len(t.Thresholds), len(t.StayCount))
	}
	for i, s := range t.Steps {
		if s.ClockMHz <= 0 {
			return fmt.Errorf("%w: step %d clock must be positive", ErrInvalidTable, i)
		}
		if i > 0 && s.ClockMHz <= t.Steps[i-1].ClockMHz {
			return fmt.Errorf("%w: step %d clock must exceed step %d", ErrInvalidTable, i, i-1)
		}
		th := t.Thresholds[i]
		if th.Min < 0 || th.Max > MaxUtilisation || th.Min > th.Max {
			return fmt.Errorf("%w: step %d threshold %d..%d", ErrInvalidTable, i, th.Min, th.Max)
		}
		if t.StayCount[i] < 0 {
			return fmt.Errorf("%w: step %d stay count is negative", ErrInvalidTable, i)
		}
	}
	return nil
}

func (t Table) clone() Table {
	return Table{
		Steps:      append([]Step(nil), t.Steps...),
		Thresholds: append([]Threshold(nil), t.Thresholds...),
		StayCount:  append([]int(nil), t.StayCount...),
	}
}

// ClampVoltage limits uv to [MinVoltageUV, MaxVoltageUV].
func ClampVoltage(uv int) int {
	switch {
	case uv < MinVoltageUV:
		return MinVoltageUV
	case uv > MaxVoltageUV:
		return MaxVoltageUV
	}
	return uv
}
