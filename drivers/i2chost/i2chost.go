// Package i2chost is an I2C controller whose targets are Go values. It
// lets TinyGo sensor drivers run against a probed bus on a hosted system.
package i2chost

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/register"
)

// Target answers transfers addressed to it. w is written first; r is then
// filled as by a repeated-start read.
type Target interface {
	Tx(w, r []byte) error
}

// TargetFunc adapts a function to Target.
type TargetFunc func(w, r []byte) error

func (f TargetFunc) Tx(w, r []byte) error { return f(w, r) }

type Options struct {
	// Targets maps 7-bit addresses to simulated devices, per controller
	// node path. The empty key applies to every controller.
	Targets map[string]map[uint16]Target
}

type Controller struct {
	name    string
	mu      sync.Mutex
	targets map[uint16]Target
	open    bool
}

func New(name string) *Controller {
	return &Controller{name: name, targets: map[uint16]Target{}}
}

func Record(opts Options) register.Record {
	return register.Record{
		Name:     "i2c-host",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault - 1,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"drivercore,i2c-host"},
			OnProbe: func(info register.FdtInfo, _ *device.PlatformDevice) (driver.Driver, error) {
				c := New(info.Node.Name())
				for _, key := range []string{"", info.Node.Path()} {
					for addr, t := range opts.Targets[key] {
						c.Attach(addr, t)
					}
				}
				return c, nil
			},
		}},
	}
}

// Attach places t at addr, replacing any previous target.
func (c *Controller) Attach(addr uint16, t Target) {
	c.mu.Lock()
	c.targets[addr] = t
	c.mu.Unlock()
}

func (c *Controller) Open() error {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

// Tx implements drivers.I2C. An absent target is reported like a NAK.
func (c *Controller) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	t, ok := c.targets[addr]
	c.mu.Unlock()
	if !ok {
		return errcode.New(errcode.NoDevice, "i2c", fmt.Sprintf("%s: no ack from 0x%02x", c.name, addr))
	}
	return t.Tx(w, r)
}

// Bus shares a registered controller: every transfer takes the device
// for its duration only.
func Bus(dev device.Device[driver.I2CBus]) drivers.I2C { return lockedBus{dev} }

type lockedBus struct{ dev device.Device[driver.I2CBus] }

func (b lockedBus) Tx(addr uint16, w, r []byte) error {
	g, err := b.dev.Lock()
	if err != nil {
		return err
	}
	defer g.Unlock()
	return g.Driver().Tx(addr, w, r)
}

// ParentBus checks that the node sits at addr on its parent controller
// and returns the controller as a shared bus. A controller that has not
// been probed yet is not_match, so a later pass retries the node.
func ParentBus(info register.FdtInfo, dev *device.PlatformDevice, addr uint16) (drivers.I2C, error) {
	regs, err := info.Node.Reg()
	if err != nil {
		return nil, err
	}
	if len(regs) != 1 || regs[0].Address != uint64(addr) {
		return nil, errcode.NotMatch
	}
	id, ok := info.DeviceIDOf(info.Node.Parent())
	if !ok || !dev.Registry().Has(id) {
		return nil, errcode.NotMatch
	}
	bus, err := device.Get[driver.I2CBus](dev.Registry(), id)
	if err != nil {
		return nil, err
	}
	return Bus(bus), nil
}
