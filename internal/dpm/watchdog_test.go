package dpm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdog_FiresOnceForHungCallback(t *testing.T) {
	var fired atomic.Int32
	var firedDev atomic.Value
	expired := make(chan struct{})

	m := newTestManager(t, Config{Workers: 2, WatchdogTimeout: 30 * time.Millisecond},
		WithWatchdogExpire(func(dev *Device, stack []byte) {
			if fired.Add(1) == 1 {
				firedDev.Store(dev.Name())
				close(expired)
			}
			if len(stack) == 0 {
				t.Error("expected goroutine stack dump")
			}
		}),
	)

	hung := NewDevice("hung", "stuck-drv", nil)
	hung.Bus = &Provider{PM: &Ops{
		Suspend: func(ctx context.Context, _ *Device) error {
			select {
			case <-expired:
			case <-time.After(5 * time.Second):
			}
			return nil
		},
	}}
	m.Registry().Add(hung) //nolint:errcheck

	if _, err := m.Enter(context.Background(), MsgSuspend, nil); err != nil {
		t.Fatalf("Enter() error: %v", err)
	}

	// Give a stale timer the chance to fire a second time.
	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("watchdog fired %d times, want 1", got)
	}
	if firedDev.Load() != "hung" {
		t.Errorf("watchdog device = %v, want hung", firedDev.Load())
	}
}

func TestWatchdog_DisarmedOnReturn(t *testing.T) {
	var fired atomic.Int32
	w := NewWatchdog(20*time.Millisecond, func(*Device, []byte) { fired.Add(1) }, nil)

	disarm := w.Arm(NewDevice("fast", "", nil))
	disarm()

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("disarmed watchdog fired")
	}
}

func TestWatchdog_ZeroTimeoutDisabled(t *testing.T) {
	w := NewWatchdog(0, func(*Device, []byte) { t.Error("disabled watchdog fired") }, nil)
	disarm := w.Arm(NewDevice("d", "", nil))
	time.Sleep(10 * time.Millisecond)
	disarm()
}
