// Package shtc3 binds the Sensirion SHTC3 temperature/humidity sensor
// found under an I2C controller node. The chip protocol is
// tinygo.org/x/drivers/shtc3; this package only finds the bus.
package shtc3

import (
	"fmt"

	"tinygo.org/x/drivers"
	chip "tinygo.org/x/drivers/shtc3"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/drivers/i2chost"
	"drivercore-go/register"
)

// Address is the sensor's fixed 7-bit address.
const Address = 0x70

type Sensor struct {
	dev  chip.Device
	name string
}

// Sample is one measurement.
type Sample struct {
	MilliCelsius int32
	Humidity     int32 // as reported by the chip driver
}

func Record() register.Record {
	return register.Record{
		Name:     "shtc3",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"sensirion,shtc3"},
			OnProbe:     probe,
		}},
	}
}

func probe(info register.FdtInfo, dev *device.PlatformDevice) (driver.Driver, error) {
	bus, err := i2chost.ParentBus(info, dev, Address)
	if err != nil {
		return nil, err
	}
	return New(bus, info.Node.Path()), nil
}

// New wraps a sensor on bus.
func New(bus drivers.I2C, name string) *Sensor {
	return &Sensor{dev: chip.New(bus), name: name}
}

func (s *Sensor) Open() error {
	if err := s.dev.WakeUp(); err != nil {
		return fmt.Errorf("shtc3 %s: wake: %w", s.name, err)
	}
	return nil
}

func (s *Sensor) Close() error { return s.dev.Sleep() }

// Measure performs one blocking measurement.
func (s *Sensor) Measure() (Sample, error) {
	t, h, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		return Sample{}, fmt.Errorf("shtc3 %s: %w", s.name, err)
	}
	return Sample{MilliCelsius: int32(t), Humidity: int32(h)}, nil
}
