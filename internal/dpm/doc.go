// Package dpm drives a set of devices through a system-wide power transition.
//
// A transition is split into phases, each of which is a sweep over the
// device registry:
//
//	suspend direction                     resume direction
//	─────────────────                     ────────────────
//	prepare        (front → back)         resume_noirq (front → back)
//	suspend        (back → front, async)  resume       (front → back, async)
//	suspend_noirq  (back → front)         complete     (back → front)
//
// Devices are registered parent first, so walking the registry from the back
// visits children before their parents. Devices that opt in to asynchronous
// execution run on a worker pool; ordering between them is enforced by each
// device's Completion: a parent waits for every child during suspend and a
// child waits for its parent during resume.
//
// Suspend-direction phases are fail-fast. The first error aborts the sweep and
// the Manager rolls the system back through the resume direction. Resume-direction
// phases are best-effort: errors are logged and reported, never propagated.
//
// # Usage
//
//	mgr, err := dpm.New(dpm.Config{Async: true, Workers: 8, WatchdogTimeout: 12 * time.Second},
//	    dpm.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	gpu := dpm.NewDevice("gpu", "mali", soc)
//	gpu.Bus = &dpm.Provider{Name: "platform", PM: &dpm.Ops{Suspend: gpuSuspend, Resume: gpuResume}}
//	mgr.Registry().Add(gpu)
//
//	tr, err := mgr.Enter(ctx, dpm.MsgSuspend, sleep)
//
// # Watchdog
//
// Every suspend attempt is guarded by a Watchdog. A callback that does not
// return within the configured bound is treated as a hung driver: the default
// expiry handler dumps all goroutine stacks and panics.
//
// # Thread Safety
//
// Registry and Manager methods are safe for concurrent use. Only one
// transition may run at a time; Enter returns ErrInProgress otherwise.
package dpm
