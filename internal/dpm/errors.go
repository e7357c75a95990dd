package dpm

import (
	"errors"
	"fmt"
)

// Domain errors for the dpm package.
var (
	// ErrNotRegistered is returned when a device is not in the registry.
	ErrNotRegistered = errors.New("dpm: device not registered")

	// ErrAlreadyRegistered is returned when adding a device twice.
	ErrAlreadyRegistered = errors.New("dpm: device already registered")

	// ErrInProgress is returned when a transition is already running.
	ErrInProgress = errors.New("dpm: transition in progress")

	// ErrAborted is returned by a device whose suspend was skipped because
	// another device had already failed in the same phase.
	ErrAborted = errors.New("dpm: aborted due to sibling failure")

	// ErrInvalidEvent is returned when parsing an unknown event name.
	ErrInvalidEvent = errors.New("dpm: invalid event")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("dpm: invalid config")
)

// Errno is a numeric callback result code.
type Errno int

// Codes a callback may return. EAGAIN from a prepare callback skips the
// device for this transition; EBUSY is reported when a wake-up arrives
// while preparing.
const (
	EIO       Errno = 5
	EAGAIN    Errno = 11
	EBUSY     Errno = 16
	ETIMEDOUT Errno = 110
)

var errnoNames = map[Errno]string{
	EIO:       "EIO",
	EAGAIN:    "EAGAIN",
	EBUSY:     "EBUSY",
	ETIMEDOUT: "ETIMEDOUT",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return fmt.Sprintf("%s (%d)", name, int(e))
	}
	return fmt.Sprintf("errno %d", int(e))
}

// ParseErrno maps a code name such as "EBUSY" to its Errno.
func ParseErrno(name string) (Errno, bool) {
	for code, n := range errnoNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// CodeOf returns the numeric code carried by err.
// Errors that carry no code report EIO; nil reports 0.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var errno Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(EIO)
}

// CallbackError records which device failed and in which phase.
type CallbackError struct {
	Device string
	Phase  Phase
	Verb   string
	Level  string
	Err    error
}

func (e *CallbackError) Error() string {
	if e.Level != "" {
		return fmt.Sprintf("dpm: device %s failed to %s (%s %s): %v", e.Device, e.Verb, e.Level, e.Phase, e.Err)
	}
	return fmt.Sprintf("dpm: device %s failed to %s (%s): %v", e.Device, e.Verb, e.Phase, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Code returns the numeric code of the underlying error.
func (e *CallbackError) Code() int {
	return CodeOf(e.Err)
}

// FailedDevice returns the name of the device an error is attributed to,
// or "" if err does not carry one.
func FailedDevice(err error) string {
	var cbErr *CallbackError
	if errors.As(err, &cbErr) {
		return cbErr.Device
	}
	return ""
}
