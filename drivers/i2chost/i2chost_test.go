package i2chost

import (
	"testing"

	"tinygo.org/x/drivers"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/types"
)

var (
	_ driver.I2CBus = (*Controller)(nil)
	_ drivers.I2C   = lockedBus{}
)

func TestTxRoutesByAddress(t *testing.T) {
	c := New("i2c0")
	var got []byte
	c.Attach(0x48, TargetFunc(func(w, r []byte) error {
		got = append(got, w...)
		for i := range r {
			r[i] = 0xa5
		}
		return nil
	}))
	r := make([]byte, 2)
	if err := c.Tx(0x48, []byte{0x01}, r); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || r[0] != 0xa5 {
		t.Fatalf("w=%v r=%v", got, r)
	}
	if err := c.Tx(0x49, nil, r); errcode.Of(err) != errcode.NoDevice {
		t.Fatalf("missing target: %v", err)
	}
}

func TestBusLocksPerTransfer(t *testing.T) {
	reg := device.NewRegistry()
	id := types.NewDeviceID()
	c := New("i2c0")
	c.Attach(0x10, TargetFunc(func(w, r []byte) error { return nil }))
	if err := reg.Insert(id, c, types.Descriptor{Name: "i2c-host"}); err != nil {
		t.Fatal(err)
	}
	dev, err := device.Get[driver.I2CBus](reg, id)
	if err != nil {
		t.Fatal(err)
	}
	bus := Bus(dev)
	if err := bus.Tx(0x10, []byte{1}, nil); err != nil {
		t.Fatal(err)
	}
	// The guard is dropped after each transfer.
	g, err := dev.TryLock()
	if err != nil {
		t.Fatalf("bus left locked: %v", err)
	}
	g.Unlock()
}
