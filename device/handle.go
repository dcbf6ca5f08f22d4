package device

import (
	"fmt"

	"drivercore-go/errcode"
	"drivercore-go/types"
	"drivercore-go/x/osal"
)

// Device is a lightweight handle to a registered driver of type T. T is
// usually a capability interface from package driver, or a concrete
// driver type. Handles do not keep a device registered: after the
// registry releases it, Lock and TryLock report device_released.
type Device[T any] struct {
	s    *slot
	desc types.Descriptor
}

// Guard is exclusive access to one device. Call Unlock when done; guards
// are not re-entrant.
type Guard[T any] struct {
	s   *slot
	drv T
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }

func matches[T any](s *slot) bool {
	_, ok := s.drv.(T)
	return ok
}

// Get returns a handle to device id typed at T.
func Get[T any](r *Registry, id types.DeviceID) (Device[T], error) {
	s, ok := r.lookup(id)
	if !ok {
		return Device[T]{}, errcode.New(errcode.NotFound, "device.get", id.String())
	}
	if !matches[T](s) {
		var zero T
		return Device[T]{}, errcode.New(errcode.TypeNotMatch, "device.get",
			fmt.Sprintf("%s is %s, not %s", id, typeName(s.drv), typeName(&zero)[1:]))
	}
	return Device[T]{s: s, desc: s.descriptor()}, nil
}

// GetOne returns the first registered device of type T.
func GetOne[T any](r *Registry) (Device[T], bool) {
	for _, s := range r.snapshot() {
		if matches[T](s) {
			return Device[T]{s: s, desc: s.descriptor()}, true
		}
	}
	return Device[T]{}, false
}

// GetList returns every registered device of type T in registration order.
func GetList[T any](r *Registry) []Device[T] {
	var out []Device[T]
	for _, s := range r.snapshot() {
		if matches[T](s) {
			out = append(out, Device[T]{s: s, desc: s.descriptor()})
		}
	}
	return out
}

// ID returns the device id.
func (d Device[T]) ID() types.DeviceID { return d.desc.DeviceID }

// Descriptor returns the descriptor as it was when the handle was issued.
func (d Device[T]) Descriptor() types.Descriptor { return d.desc.Clone() }

// Valid reports whether the handle refers to a device at all.
func (d Device[T]) Valid() bool { return d.s != nil }

func (d Device[T]) upgrade(op string) (*slot, error) {
	if d.s == nil {
		return nil, errcode.New(errcode.NotFound, op, "zero handle")
	}
	if d.s.released.Load() {
		return nil, errcode.New(errcode.DeviceReleased, op, d.desc.DeviceID.String())
	}
	return d.s, nil
}

func (d Device[T]) guard(s *slot) *Guard[T] {
	drv, _ := s.drv.(T)
	return &Guard[T]{s: s, drv: drv}
}

// TryLock makes one attempt to take the device. On contention it returns
// a *UsedByOthersError naming the holder, or errcode.UsedByUnknown.
func (d Device[T]) TryLock() (*Guard[T], error) {
	s, err := d.upgrade("device.try_lock")
	if err != nil {
		return nil, err
	}
	if err := s.tryAcquire(osal.Current()); err != nil {
		return nil, err
	}
	return d.guard(s), nil
}

// Lock busy-spins until the device is free. It never sleeps. Taking a
// device the caller already holds never returns.
func (d Device[T]) Lock() (*Guard[T], error) {
	s, err := d.upgrade("device.lock")
	if err != nil {
		return nil, err
	}
	s.acquire(osal.Current())
	return d.guard(s), nil
}

// ForceUse returns the driver without taking the slot. It is meant for
// interrupt handlers that the system guarantees never race with
// themselves; any other use is a data race the registry cannot detect.
// ok is false once the device has been released.
func (d Device[T]) ForceUse() (drv T, ok bool) {
	if d.s == nil || d.s.released.Load() {
		return drv, false
	}
	drv, ok = d.s.drv.(T)
	return drv, ok
}

// Driver returns the guarded driver instance. It must not be retained
// past Unlock.
func (g *Guard[T]) Driver() T { return g.drv }

// Descriptor returns the current descriptor, or a zero one after Unlock.
func (g *Guard[T]) Descriptor() types.Descriptor {
	if g.s == nil {
		return types.Descriptor{}
	}
	return g.s.descriptor()
}

// SetIrqs replaces the device's interrupt list, e.g. after the driver
// reassigns a line. Handles issued afterwards observe the change. It does
// nothing after Unlock.
func (g *Guard[T]) SetIrqs(irqs []types.IrqConfig) {
	if g.s == nil {
		return
	}
	d := g.s.descriptor()
	d.Irqs = append([]types.IrqConfig(nil), irqs...)
	g.s.desc.Store(&d)
}

// Unlock frees the device. Calling it again is a no-op.
func (g *Guard[T]) Unlock() {
	if g.s == nil {
		return
	}
	g.s.release()
	g.s = nil
}
