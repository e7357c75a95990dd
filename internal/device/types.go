package device

import (
	"time"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// Manifest is the top-level document of a devices file.
type Manifest struct {
	Devices []Definition `yaml:"devices"`
}

// Definition describes one simulated device.
type Definition struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver,omitempty"`
	Parent string `yaml:"parent,omitempty"`

	// Async opts the device into asynchronous suspend and resume.
	Async bool `yaml:"async,omitempty"`

	// Wakeup marks the device as able to abort a prepare with a wake-up.
	Wakeup bool `yaml:"wakeup,omitempty"`

	// Provider names for each callback level. A definition with none of
	// them gets a bus provider named "platform".
	Bus   string `yaml:"bus,omitempty"`
	Type  string `yaml:"type,omitempty"`
	Class string `yaml:"class,omitempty"`

	// Legacy makes the bus and class providers use the single-function
	// suspend and resume forms instead of per-phase callbacks.
	Legacy bool `yaml:"legacy,omitempty"`

	// Latency is how long each phase callback takes, keyed by phase name.
	Latency map[string]time.Duration `yaml:"latency,omitempty"`

	// Fail gives an error code name per phase, such as "EIO".
	Fail map[string]string `yaml:"fail,omitempty"`

	// Hang names a phase whose callback blocks until released. Only
	// "suspend" is accepted since it is the one phase under the watchdog.
	Hang string `yaml:"hang,omitempty"`
}

// DefaultBus is the bus provider given to definitions that name none.
const DefaultBus = "platform"

// phases lists every phase a definition may configure.
var phases = []dpm.Phase{
	dpm.PhasePrepare,
	dpm.PhaseSuspend,
	dpm.PhaseSuspendNoIRQ,
	dpm.PhaseResumeNoIRQ,
	dpm.PhaseResume,
	dpm.PhaseComplete,
}

func parsePhase(name string) (dpm.Phase, bool) {
	for _, p := range phases {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}
