package device

import (
	"strconv"
	"sync/atomic"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/types"
	"drivercore-go/x/osal"
)

// UsedByOthersError reports contention on a slot held by a known holder.
type UsedByOthersError struct {
	Holder osal.Holder
}

func (e *UsedByOthersError) Error() string {
	return "used_by_others: holder " + strconv.FormatInt(int64(e.Holder), 10)
}
func (e *UsedByOthersError) Code() errcode.Code { return errcode.UsedByOthers }
func (e *UsedByOthersError) Is(target error) bool {
	return target == errcode.UsedByOthers
}

// slot is the exclusive cell holding one driver instance. owner is
// osal.Free or the holder that currently has the guard; it is only ever
// changed by compare-and-swap (acquire) and by a guard release.
type slot struct {
	owner    atomic.Int64
	released atomic.Bool
	drv      driver.Driver
	desc     atomic.Pointer[types.Descriptor]
}

func newSlot(desc types.Descriptor, drv driver.Driver) *slot {
	s := &slot{drv: drv}
	s.owner.Store(int64(osal.Free))
	d := desc.Clone()
	s.desc.Store(&d)
	return s
}

func (s *slot) descriptor() types.Descriptor { return s.desc.Load().Clone() }

// tryAcquire makes a single compare-and-swap attempt.
func (s *slot) tryAcquire(h osal.Holder) error {
	if s.owner.CompareAndSwap(int64(osal.Free), int64(h)) {
		return nil
	}
	switch old := osal.Holder(s.owner.Load()); old {
	case osal.Unknown, osal.Free:
		// Free here means the holder let go between the CAS and the load;
		// the attempt still lost.
		return errcode.UsedByUnknown
	default:
		return &UsedByOthersError{Holder: old}
	}
}

// acquire spins until the marker moves from free to h. It never parks
// the caller, so it is usable where sleeping is not.
func (s *slot) acquire(h osal.Holder) {
	for !s.owner.CompareAndSwap(int64(osal.Free), int64(h)) {
	}
}

func (s *slot) release() { s.owner.Store(int64(osal.Free)) }
