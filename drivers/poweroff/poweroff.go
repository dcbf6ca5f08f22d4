// Package poweroff implements "syscon-poweroff": power is cut by writing
// a value to a register of a system controller.
package poweroff

import (
	"sync/atomic"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/register"
)

// Options.Write performs the register write; nil only records it.
type Options struct {
	Write func(offset, value, mask uint32) error
}

type Controller struct {
	offset, value, mask uint32
	write               func(offset, value, mask uint32) error
	done                atomic.Bool
}

func Record(opts Options) register.Record {
	return register.Record{
		Name:     "syscon-poweroff",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"syscon-poweroff"},
			OnProbe: func(info register.FdtInfo, _ *device.PlatformDevice) (driver.Driver, error) {
				n := info.Node
				off, ok, err := n.U32("offset")
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, errcode.New(errcode.MalformedTree, "poweroff", n.Path()+": no offset")
				}
				val, hasVal, err := n.U32("value")
				if err != nil {
					return nil, err
				}
				mask, hasMask, err := n.U32("mask")
				if err != nil {
					return nil, err
				}
				// Binding: with only mask given, the value written is the mask.
				switch {
				case !hasVal && !hasMask:
					return nil, errcode.New(errcode.MalformedTree, "poweroff", n.Path()+": no value or mask")
				case !hasVal:
					val = mask
				case !hasMask:
					mask = 0xffffffff
				}
				return New(off, val, mask, opts.Write), nil
			},
		}},
	}
}

func New(offset, value, mask uint32, write func(offset, value, mask uint32) error) *Controller {
	return &Controller{offset: offset, value: value, mask: mask, write: write}
}

func (c *Controller) Open() error  { return nil }
func (c *Controller) Close() error { return nil }

// Shutdown writes the poweroff value. On hardware it does not return.
func (c *Controller) Shutdown() error {
	if c.write != nil {
		if err := c.write(c.offset, c.value, c.mask); err != nil {
			return err
		}
	}
	c.done.Store(true)
	return nil
}

// Requested reports whether Shutdown has run.
func (c *Controller) Requested() bool { return c.done.Load() }
