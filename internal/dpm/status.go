package dpm

import "fmt"

// Status is the power state of a device within a transition.
//
// The values are ordered; comparisons such as status >= StatusOff are used
// by the phase sweeps.
type Status int32

const (
	StatusInvalid Status = iota
	StatusOn
	StatusPreparing
	StatusResuming
	StatusSuspending
	StatusOff
	StatusOffIRQ
)

var statusNames = [...]string{
	StatusInvalid:    "invalid",
	StatusOn:         "on",
	StatusPreparing:  "preparing",
	StatusResuming:   "resuming",
	StatusSuspending: "suspending",
	StatusOff:        "off",
	StatusOffIRQ:     "off_irq",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("dpm: unknown status %q", text)
}

// Phase names one sweep of a transition.
type Phase string

const (
	PhasePrepare      Phase = "prepare"
	PhaseSuspend      Phase = "suspend"
	PhaseSuspendNoIRQ Phase = "suspend_noirq"
	PhaseResumeNoIRQ  Phase = "resume_noirq"
	PhaseResume       Phase = "resume"
	PhaseComplete     Phase = "complete"
)

// logSuffix is appended to the verb in failure logs.
func (p Phase) logSuffix() string {
	switch p {
	case PhaseSuspendNoIRQ:
		return " late"
	case PhaseResumeNoIRQ:
		return " early"
	case PhasePrepare:
		return " prepare"
	case PhaseComplete:
		return " complete"
	default:
		return ""
	}
}
