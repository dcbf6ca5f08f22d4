// Package device owns every constructed driver instance and hands out
// typed, exclusive access to them.
//
// A Registry maps device ids to slots. Lookups take the registry lock only
// for the duration of the map access; once a Device handle exists, access
// serialises on that device's slot alone, through a lock-free owner marker
// that is safe to use from interrupt-style contexts.
package device

import (
	"errors"
	"sync"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/types"
	"drivercore-go/x/osal"
)

type Registry struct {
	mu    sync.RWMutex
	slots map[types.DeviceID]*slot
	order []types.DeviceID // insertion order
}

func NewRegistry() *Registry {
	return &Registry{slots: map[types.DeviceID]*slot{}}
}

// Insert stores drv under id. It fails with already_exists when id is
// taken: one device, one slot, for the life of the registry.
func (r *Registry) Insert(id types.DeviceID, drv driver.Driver, desc types.Descriptor) error {
	if drv == nil {
		return errcode.New(errcode.NoDevice, "device.insert", desc.Name)
	}
	desc.DeviceID = id

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.slots[id]; exists {
		return errcode.New(errcode.AlreadyExists, "device.insert", id.String())
	}
	r.slots[id] = newSlot(desc, drv)
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) lookup(id types.DeviceID) (*slot, bool) {
	r.mu.RLock()
	s, ok := r.slots[id]
	r.mu.RUnlock()
	return s, ok
}

// snapshot returns the live slots in insertion order.
func (r *Registry) snapshot() []*slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*slot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.slots[id])
	}
	return out
}

// Has reports whether a device is registered under id.
func (r *Registry) Has(id types.DeviceID) bool {
	_, ok := r.lookup(id)
	return ok
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// IDs returns the registered ids in insertion order.
func (r *Registry) IDs() []types.DeviceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.DeviceID(nil), r.order...)
}

// Info is an untyped view of one registered device.
type Info struct {
	Descriptor types.Descriptor
	Driver     string // dynamic type of the driver instance
}

// Describe returns the descriptor and driver type name of id.
func (r *Registry) Describe(id types.DeviceID) (Info, error) {
	s, ok := r.lookup(id)
	if !ok {
		return Info{}, errcode.New(errcode.NotFound, "device.describe", id.String())
	}
	return Info{Descriptor: s.descriptor(), Driver: typeName(s.drv)}, nil
}

// Release drops the registry's reference to id. Handles issued earlier
// fail with device_released from now on; a guard already open keeps
// working until it is unlocked. Release then waits for the slot, closes
// the driver and returns the Close error.
func (r *Registry) Release(id types.DeviceID) error {
	r.mu.Lock()
	s, ok := r.slots[id]
	if ok {
		s.released.Store(true)
		delete(r.slots, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return errcode.New(errcode.NotFound, "device.release", id.String())
	}

	s.acquire(osal.Current())
	defer s.release()
	return s.drv.Close()
}

// ReleaseAll releases every device, newest first, and joins the Close
// errors.
func (r *Registry) ReleaseAll() error {
	ids := r.IDs()
	var errs []error
	for i := len(ids) - 1; i >= 0; i-- {
		if err := r.Release(ids[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
