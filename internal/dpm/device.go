package dpm

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Device is the unit of orchestration.
//
// The callback providers and flags must be set before the device is added to
// a Registry. The parent pointer is navigational only; device lifetime is
// owned by the caller.
type Device struct {
	name   string
	driver string
	parent *Device

	// Bus, Type and Class are the optional callback providers, consulted in
	// that order on the resume side and in reverse on the suspend side.
	Bus   *Provider
	Type  *Provider
	Class *Provider

	// AsyncSuspend marks the device as safe to suspend and resume
	// concurrently with its siblings.
	AsyncSuspend bool

	// WakeupCapable marks the device as able to abort a transition when a
	// wake-up request arrives while it is being prepared.
	WakeupCapable bool

	status     atomic.Int32
	completion *Completion
	mu         sync.Mutex

	childMu  sync.Mutex
	children []*Device

	// guarded by Registry.mu
	elem  *list.Element
	owner *list.List
}

// NewDevice creates a device with status ON. parent may be nil.
func NewDevice(name, driver string, parent *Device) *Device {
	d := &Device{
		name:       name,
		driver:     driver,
		parent:     parent,
		completion: NewCompletion(),
	}
	d.status.Store(int32(StatusOn))
	return d
}

// Name returns the device identity.
func (d *Device) Name() string { return d.name }

// Driver returns the bound driver name, or "" if none.
func (d *Device) Driver() string { return d.driver }

// Parent returns the parent device, or nil for a root.
func (d *Device) Parent() *Device { return d.parent }

// Status returns the current power status. It may be read without locks.
func (d *Device) Status() Status { return Status(d.status.Load()) }

// Completion returns the device's phase completion signal.
func (d *Device) Completion() *Completion { return d.completion }

// Lock acquires the device lock. Callbacks run with it held.
func (d *Device) Lock() { d.mu.Lock() }

// Unlock releases the device lock.
func (d *Device) Unlock() { d.mu.Unlock() }

// ForEachChild calls fn for each registered child of d, stopping at the
// first error.
func (d *Device) ForEachChild(fn func(child *Device) error) error {
	d.childMu.Lock()
	children := make([]*Device, len(d.children))
	copy(children, d.children)
	d.childMu.Unlock()

	for _, c := range children {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Children returns a snapshot of the registered children.
func (d *Device) Children() []*Device {
	var out []*Device
	//nolint:errcheck // callback never fails
	d.ForEachChild(func(c *Device) error {
		out = append(out, c)
		return nil
	})
	return out
}

func (d *Device) addChild(c *Device) {
	d.childMu.Lock()
	d.children = append(d.children, c)
	d.childMu.Unlock()
}

func (d *Device) removeChild(c *Device) {
	d.childMu.Lock()
	defer d.childMu.Unlock()
	for i, ch := range d.children {
		if ch == c {
			d.children = append(d.children[:i], d.children[i+1:]...)
			return
		}
	}
}

// driverName returns the driver for log lines.
func (d *Device) driverName() string {
	if d.driver == "" {
		return "no driver"
	}
	return d.driver
}
