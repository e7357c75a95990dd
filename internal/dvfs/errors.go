package dvfs

import "errors"

// Domain-specific errors for the governor.
var (
	// ErrInvalidTable is returned when a step table is empty or inconsistent.
	ErrInvalidTable = errors.New("dvfs: invalid step table")

	// ErrInvalidVoltageCount is returned when SetVoltages receives neither
	// two nor three values.
	ErrInvalidVoltageCount = errors.New("dvfs: expected 2 or 3 voltages")

	// ErrInvalidControl is returned for a negative manual control value.
	ErrInvalidControl = errors.New("dvfs: invalid control value")

	// ErrNoRegulator is returned by New when no regulator is given.
	ErrNoRegulator = errors.New("dvfs: regulator is required")
)
