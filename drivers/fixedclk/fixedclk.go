// Package fixedclk is the "fixed-clock" provider: one output whose rate
// comes from the device tree and never changes.
package fixedclk

import (
	"fmt"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/register"
	"drivercore-go/types"
)

type Clock struct {
	name    string
	hz      uint64
	enabled bool
}

func New(name string, hz uint64) *Clock { return &Clock{name: name, hz: hz} }

func Record() register.Record {
	return register.Record{
		Name:     "fixed-clock",
		Level:    register.PreKernel,
		Priority: register.PriorityClk,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"fixed-clock"},
			OnProbe:     probe,
		}},
	}
}

// probe registers through dev rather than returning the instance.
func probe(info register.FdtInfo, dev *device.PlatformDevice) (driver.Driver, error) {
	hz, ok, err := info.Node.U32("clock-frequency")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MalformedTree, "fixedclk", info.Node.Path()+": no clock-frequency")
	}
	name, ok := info.Node.StringProp("clock-output-names")
	if !ok {
		name = info.Node.Name()
	}
	dev.Register(New(name, uint64(hz)))
	return nil, nil
}

func (c *Clock) Open() error   { return nil }
func (c *Clock) Close() error  { c.enabled = false; return nil }
func (c *Clock) Enable() error { c.enabled = true; return nil }
func (c *Clock) Name() string  { return c.name }

func (c *Clock) Rate(id types.ClockID) (uint64, error) {
	if id != 0 {
		return 0, errcode.New(errcode.InvalidParams, "fixedclk", fmt.Sprintf("output %d", id))
	}
	return c.hz, nil
}

// SetRate accepts only the fixed rate.
func (c *Clock) SetRate(id types.ClockID, hz uint64) error {
	cur, err := c.Rate(id)
	if err != nil {
		return err
	}
	if hz != cur {
		return errcode.New(errcode.Unsupported, "fixedclk", fmt.Sprintf("%s is fixed at %d Hz", c.name, cur))
	}
	return nil
}
