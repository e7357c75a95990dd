package device

import (
	"fmt"
	"strings"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

const maxNameLength = 100

// Validate checks a list of definitions. Names must be unique and every
// parent must be defined before its children.
func Validate(defs []Definition) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: no devices", ErrInvalidManifest)
	}
	seen := make(map[string]struct{}, len(defs))
	for i := range defs {
		d := &defs[i]
		if err := ValidateName(d.Name); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
		if d.Parent != "" {
			if _, ok := seen[d.Parent]; !ok {
				return fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, d.Parent, d.Name)
			}
		}
		if err := validateBehaviour(d); err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// ValidateName checks that a device name is present and not too long.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if trimmed != name {
		return fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidName)
	}
	return nil
}

func validateBehaviour(d *Definition) error {
	for name, lat := range d.Latency {
		if _, ok := parsePhase(name); !ok {
			return fmt.Errorf("%w: latency %q", ErrUnknownPhase, name)
		}
		if lat < 0 {
			return fmt.Errorf("%w: negative latency for %s", ErrInvalidManifest, name)
		}
	}
	for name, code := range d.Fail {
		if _, ok := parsePhase(name); !ok {
			return fmt.Errorf("%w: fail %q", ErrUnknownPhase, name)
		}
		if _, ok := dpm.ParseErrno(code); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownErrno, code)
		}
	}
	if d.Hang != "" {
		p, ok := parsePhase(d.Hang)
		if !ok {
			return fmt.Errorf("%w: hang %q", ErrUnknownPhase, d.Hang)
		}
		if p != dpm.PhaseSuspend {
			return fmt.Errorf("%w: hang %q", ErrUnguardedHang, d.Hang)
		}
	}
	return nil
}
