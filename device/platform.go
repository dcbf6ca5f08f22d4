package device

import (
	"drivercore-go/driver"
	"drivercore-go/types"
)

// PlatformDevice is handed to a driver constructor. It carries the
// descriptor under construction and lets the constructor register its
// instance instead of returning it. It also exposes the registry so a
// constructor can use devices probed before it.
type PlatformDevice struct {
	Descriptor types.Descriptor

	reg   *Registry
	drv   driver.Driver
	count int
}

func NewPlatformDevice(desc types.Descriptor, reg *Registry) *PlatformDevice {
	return &PlatformDevice{Descriptor: desc, reg: reg}
}

// Register hands drv back to the probe engine. It is equivalent to
// returning drv from the constructor.
func (p *PlatformDevice) Register(drv driver.Driver) {
	if p.count == 0 {
		p.drv = drv
	}
	p.count++
}

// Registered returns the instance passed to Register and how many times
// Register was called.
func (p *PlatformDevice) Registered() (driver.Driver, int) { return p.drv, p.count }

// Registry returns the registry holding already-probed devices.
func (p *PlatformDevice) Registry() *Registry { return p.reg }
