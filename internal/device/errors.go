package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidManifest) {
//	    // report the bad manifest
//	}
var (
	// ErrInvalidManifest is returned when a manifest cannot be parsed or
	// fails validation.
	ErrInvalidManifest = errors.New("device: invalid manifest")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrDuplicateName is returned when two definitions share a name.
	ErrDuplicateName = errors.New("device: duplicate name")

	// ErrUnknownParent is returned when a parent is not defined earlier in
	// the manifest.
	ErrUnknownParent = errors.New("device: unknown parent")

	// ErrUnknownPhase is returned for a phase name that does not exist.
	ErrUnknownPhase = errors.New("device: unknown phase")

	// ErrUnguardedHang is returned for a hang outside the suspend phase.
	// Only suspend callbacks run under the watchdog, so a hang anywhere
	// else could never be released.
	ErrUnguardedHang = errors.New("device: hang outside suspend is never released")

	// ErrUnknownErrno is returned for an unrecognised failure code.
	ErrUnknownErrno = errors.New("device: unknown error code")
)
