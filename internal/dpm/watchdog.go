package dpm

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

// DefaultWatchdogTimeout bounds a single device's suspend attempt.
const DefaultWatchdogTimeout = 12 * time.Second

// ExpireFunc handles a watchdog expiry. stack holds the goroutine dump taken
// at the moment of expiry.
type ExpireFunc func(dev *Device, stack []byte)

// Watchdog detects device suspend callbacks that never return.
type Watchdog struct {
	timeout time.Duration
	expire  ExpireFunc
	logger  Logger
}

// NewWatchdog creates a watchdog. A nil expire uses the fatal default,
// which prints every goroutine stack and panics. A zero timeout disables it.
func NewWatchdog(timeout time.Duration, expire ExpireFunc, logger Logger) *Watchdog {
	if expire == nil {
		expire = fatalExpire
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watchdog{timeout: timeout, expire: expire, logger: logger}
}

// Timeout returns the configured bound.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Arm starts the timer for dev and returns the function that disarms it.
// The returned function must run on every exit path; defer it.
func (w *Watchdog) Arm(dev *Device) (disarm func()) {
	if w.timeout <= 0 {
		return func() {}
	}
	armed := time.Now()
	t := time.AfterFunc(w.timeout, func() {
		w.logger.Error("DPM device timeout",
			"device", dev.name,
			"driver", dev.driverName(),
			"elapsed_ms", time.Since(armed).Milliseconds(),
		)
		w.expire(dev, goroutineStacks())
	})
	return func() { t.Stop() }
}

// fatalExpire treats a hung suspend callback as unrecoverable.
func fatalExpire(dev *Device, stack []byte) {
	fmt.Fprintf(os.Stderr, "**** DPM device timeout: %s (%s)\n", dev.name, dev.driverName())
	fmt.Fprintf(os.Stderr, "dpm suspend stack:\n%s\n", stack)
	debug.SetTraceback("all")
	panic(fmt.Sprintf("dpm: device timeout: %s (%s)", dev.name, dev.driverName()))
}

// goroutineStacks returns the stacks of all goroutines.
func goroutineStacks() []byte {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		if len(buf) >= 16<<20 {
			return buf
		}
		buf = make([]byte, 2*len(buf))
	}
}
