package dpm

import (
	"container/list"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the ordered list of devices taking part in power transitions.
//
// Insertion order is discovery order: a parent is always added before its
// children. Every structural change and the transition flag are guarded by a
// single mutex which is never held while a device callback runs.
type Registry struct {
	mu                sync.Mutex
	devices           *list.List
	transitionStarted bool
	logger            Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: list.New(),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add appends dev to the tail of the registry and links it to its parent.
//
// Adding a device below a sleeping parent, or a parentless device while a
// transition is in progress, is a caller bug. It is logged, and the device is
// still added.
func (r *Registry) Add(dev *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev.owner != nil {
		return fmt.Errorf("adding %s: %w", dev.name, ErrAlreadyRegistered)
	}

	if p := dev.parent; p != nil {
		if p.Status() >= StatusSuspending {
			r.logger.Warn("parent should not be sleeping",
				"device", dev.name,
				"parent", p.name,
				"parent_status", p.Status().String(),
			)
		}
		p.addChild(dev)
	} else if r.transitionStarted {
		r.logger.Error("parentless device registered during a power transition",
			"device", dev.name,
		)
	}

	dev.elem = r.devices.PushBack(dev)
	dev.owner = r.devices
	r.logger.Debug("device added", "device", dev.name, "driver", dev.driverName())
	return nil
}

// Remove takes dev out of the registry. Anyone waiting on the device's
// completion is released.
func (r *Registry) Remove(dev *Device) error {
	dev.completion.CompleteAll()

	r.mu.Lock()
	defer r.mu.Unlock()

	if dev.owner == nil {
		return fmt.Errorf("removing %s: %w", dev.name, ErrNotRegistered)
	}
	dev.owner.Remove(dev.elem)
	dev.elem = nil
	dev.owner = nil

	if p := dev.parent; p != nil {
		p.removeChild(dev)
	}
	r.logger.Debug("device removed", "device", dev.name)
	return nil
}

// Lock acquires the registry lock. It exists for callers that must keep the
// device order stable across several steps, such as reparenting with
// MoveBefore or MoveAfter. Phase sweeps and Add/Remove block while it is held.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases the registry lock.
func (r *Registry) Unlock() { r.mu.Unlock() }

// MoveBefore places dev immediately before before. The caller must hold Lock.
func (r *Registry) MoveBefore(dev, before *Device) error {
	if dev.owner != r.devices || before.owner != r.devices {
		return ErrNotRegistered
	}
	r.devices.MoveBefore(dev.elem, before.elem)
	r.logger.Debug("moving device", "device", dev.name, "before", before.name)
	return nil
}

// MoveAfter places dev immediately after after. The caller must hold Lock.
func (r *Registry) MoveAfter(dev, after *Device) error {
	if dev.owner != r.devices || after.owner != r.devices {
		return ErrNotRegistered
	}
	r.devices.MoveAfter(dev.elem, after.elem)
	r.logger.Debug("moving device", "device", dev.name, "after", after.name)
	return nil
}

// MoveLast moves dev to the end of the registry. The caller must hold Lock.
func (r *Registry) MoveLast(dev *Device) error {
	if dev.owner != r.devices {
		return ErrNotRegistered
	}
	r.devices.MoveToBack(dev.elem)
	r.logger.Debug("moving device to end of list", "device", dev.name)
	return nil
}

// Devices returns the registered devices in registry order.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(false)
}

// Lookup returns the device with the given name.
func (r *Registry) Lookup(name string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for e := r.devices.Front(); e != nil; e = e.Next() {
		if dev := e.Value.(*Device); dev.name == name {
			return dev, true
		}
	}
	return nil, false
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices.Len()
}

// TransitionStarted reports whether a suspend transition is in progress.
func (r *Registry) TransitionStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionStarted
}

// Contains reports whether dev is registered.
func (r *Registry) Contains(dev *Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dev.owner != nil
}

func (r *Registry) setTransitionStarted(v bool) {
	r.mu.Lock()
	r.transitionStarted = v
	r.mu.Unlock()
}

// setStatus writes a device status under the registry lock.
func (r *Registry) setStatus(dev *Device, s Status) {
	r.mu.Lock()
	dev.status.Store(int32(s))
	r.mu.Unlock()
}

// setStatusLocked writes a device status; r.mu must be held.
func (r *Registry) setStatusLocked(dev *Device, s Status) {
	dev.status.Store(int32(s))
}

func (r *Registry) snapshotLocked(reverse bool) []*Device {
	out := make([]*Device, 0, r.devices.Len())
	if reverse {
		for e := r.devices.Back(); e != nil; e = e.Prev() {
			out = append(out, e.Value.(*Device))
		}
		return out
	}
	for e := r.devices.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Device))
	}
	return out
}

// sweep tracks the devices a phase has already visited. Visited devices are
// moved to a side list so that the walk can drop the registry lock between
// devices, then spliced back when the phase ends. All methods require r.mu.
type sweep struct {
	r    *Registry
	done *list.List
}

func (r *Registry) newSweep() *sweep {
	return &sweep{r: r, done: list.New()}
}

// first returns the next device to visit from the front of the registry.
func (s *sweep) first() *Device {
	if e := s.r.devices.Front(); e != nil {
		return e.Value.(*Device)
	}
	return nil
}

// last returns the next device to visit from the back of the registry.
func (s *sweep) last() *Device {
	if e := s.r.devices.Back(); e != nil {
		return e.Value.(*Device)
	}
	return nil
}

// retireTail moves a visited device to the tail of the side list.
// Devices removed while the lock was dropped are ignored.
func (s *sweep) retireTail(dev *Device) {
	if dev.owner != s.r.devices {
		return
	}
	s.r.devices.Remove(dev.elem)
	dev.elem = s.done.PushBack(dev)
	dev.owner = s.done
}

// retireHead moves a visited device to the head of the side list.
func (s *sweep) retireHead(dev *Device) {
	if dev.owner != s.r.devices {
		return
	}
	s.r.devices.Remove(dev.elem)
	dev.elem = s.done.PushFront(dev)
	dev.owner = s.done
}

// spliceHead puts the visited devices back in front of any unvisited ones.
func (s *sweep) spliceHead() {
	for e := s.done.Back(); e != nil; e = s.done.Back() {
		dev := s.done.Remove(e).(*Device)
		dev.elem = s.r.devices.PushFront(dev)
		dev.owner = s.r.devices
	}
}

// spliceTail puts the visited devices back after any unvisited ones.
func (s *sweep) spliceTail() {
	for e := s.done.Front(); e != nil; e = s.done.Front() {
		dev := s.done.Remove(e).(*Device)
		dev.elem = s.r.devices.PushBack(dev)
		dev.owner = s.r.devices
	}
}
