// Package aht20 drives the AHT20 temperature/humidity sensor found under
// an I2C controller node. Measurement is two-phase:
//
//	s.Trigger()           // start a conversion
//	err := s.Collect(&v)  // ErrNotReady while busy
//
// Read does both with bounded polling. Values are fixed point: tenths of
// a degree and tenths of a percent.
package aht20

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/drivers/i2chost"
	"drivercore-go/errcode"
	"drivercore-go/register"
)

// Address is the sensor's fixed 7-bit address.
const Address = 0x38

const (
	cmdTrigger    = 0xac
	cmdInitialize = 0xbe
	cmdSoftReset  = 0xba
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var ErrNotReady = errors.New("aht20: not ready")

type Options struct {
	// PollInterval separates Collect attempts in Read. Default 15ms.
	PollInterval time.Duration
	// Timeout bounds Read. Default 250ms.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 250 * time.Millisecond
	}
	return o
}

type Sensor struct {
	bus  drivers.I2C
	name string
	opts Options

	mu  sync.Mutex
	buf [7]byte
}

// Sample holds raw 20-bit readings.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

func (s Sample) DeciRelHumidity() int32 { return int32(s.RawHumidity) * 1000 / 0x100000 }
func (s Sample) DeciCelsius() int32     { return int32(s.RawTemp)*2000/0x100000 - 500 }

func Record(opts Options) register.Record {
	return register.Record{
		Name:     "aht20",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"aosong,aht20"},
			OnProbe: func(info register.FdtInfo, dev *device.PlatformDevice) (driver.Driver, error) {
				bus, err := i2chost.ParentBus(info, dev, Address)
				if err != nil {
					return nil, err
				}
				return New(bus, info.Node.Path(), opts), nil
			},
		}},
	}
}

// New wraps a sensor on bus. Nothing is sent until Open.
func New(bus drivers.I2C, name string, opts Options) *Sensor {
	return &Sensor{bus: bus, name: name, opts: opts.withDefaults()}
}

// Open calibrates the sensor unless it reports calibration already.
func (s *Sensor) Open() error {
	st, err := s.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := s.bus.Tx(Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return fmt.Errorf("aht20 %s: init: %w", s.name, err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (s *Sensor) Close() error { return nil }

// Reset issues a soft reset. The sensor needs about 20ms afterwards.
func (s *Sensor) Reset() error { return s.bus.Tx(Address, []byte{cmdSoftReset}, nil) }

func (s *Sensor) Status() (byte, error) {
	b := []byte{0}
	if err := s.bus.Tx(Address, []byte{cmdStatus}, b); err != nil {
		return 0, fmt.Errorf("aht20 %s: status: %w", s.name, err)
	}
	return b[0], nil
}

// Trigger starts a conversion without waiting for it.
func (s *Sensor) Trigger() error { return s.bus.Tx(Address, []byte{cmdTrigger, 0x33, 0x00}, nil) }

// Collect reads a finished conversion. ErrNotReady means try later.
func (s *Sensor) Collect(out *Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.buf[:]
	if err := s.bus.Tx(Address, nil, data); err != nil {
		return err
	}
	if data[0]&statusCalibrated == 0 || data[0]&statusBusy != 0 {
		return ErrNotReady
	}
	out.RawHumidity = uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4
	out.RawTemp = uint32(data[3]&0x0f)<<16 | uint32(data[4])<<8 | uint32(data[5])
	return nil
}

// Read triggers a conversion and polls until it completes.
func (s *Sensor) Read() (Sample, error) {
	if err := s.Trigger(); err != nil {
		return Sample{}, err
	}
	deadline := time.Now().Add(s.opts.Timeout)
	for {
		var v Sample
		err := s.Collect(&v)
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, ErrNotReady):
			return Sample{}, err
		case time.Now().After(deadline):
			return Sample{}, errcode.New(errcode.Timeout, "aht20", s.name+": conversion did not complete")
		}
		time.Sleep(s.opts.PollInterval)
	}
}
