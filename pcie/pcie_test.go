package pcie

import (
	"testing"

	"drivercore-go/driver"
)

type fakeBus struct {
	driver.Empty
	space map[driver.PciAddress]map[uint16]uint32
}

func (f *fakeBus) ReadConfig(a driver.PciAddress, off uint16) uint32 {
	regs, ok := f.space[a]
	if !ok {
		return 0xffffffff
	}
	return regs[off]
}

func (f *fakeBus) WriteConfig(a driver.PciAddress, off uint16, v uint32) {
	if regs, ok := f.space[a]; ok {
		regs[off] = v
	}
}

func (f *fakeBus) BusRange() (uint8, uint8) { return 0, 1 }

func fn(vendor, device uint16, class uint32, header uint8) map[uint16]uint32 {
	return map[uint16]uint32{
		RegVendorID:   uint32(device)<<16 | uint32(vendor),
		RegClassRev:   class,
		RegHeaderType: uint32(header) << 16,
		RegIntLine:    1 << 8,
	}
}

func TestEnumerate(t *testing.T) {
	bus := &fakeBus{space: map[driver.PciAddress]map[uint16]uint32{
		{Bus: 0, Device: 0}:              fn(0x1b36, 0x0008, 0x06000000, 0),
		{Bus: 0, Device: 1}:              fn(0x1af4, 0x1001, 0x01000001, 0x80),
		{Bus: 0, Device: 1, Function: 2}: fn(0x1af4, 0x1002, 0x01000002, 0),
		// Function 1 of a single-function device is never scanned.
		{Bus: 0, Device: 2}:              fn(0x8086, 0x100e, 0x02000003, 0),
		{Bus: 0, Device: 2, Function: 1}: fn(0xdead, 0xbeef, 0, 0),
		{Bus: 1, Device: 4}:              fn(0x1234, 0x1111, 0x03000000, 0),
	}}

	eps := Enumerate(bus, 0)
	if len(eps) != 5 {
		t.Fatalf("got %d endpoints: %v", len(eps), eps)
	}
	if eps[2].Address.Function != 2 || eps[2].DeviceID != 0x1002 {
		t.Fatalf("multi-function child: %v", eps[2])
	}
	if eps[1].Class != 0x01 || eps[1].Revision != 1 {
		t.Fatalf("class/rev: %+v", eps[1])
	}
	if eps[4].Address.Bus != 1 || eps[4].InterruptPin() != 1 {
		t.Fatalf("bus 1 endpoint: %+v", eps[4])
	}
	if _, err := eps[0].Bar(6); err == nil {
		t.Fatal("bar 6 accepted")
	}
	eps[0].EnableMemory()
	if eps[0].ReadConfig(RegCommand)&0x6 != 0x6 {
		t.Fatal("command register not updated")
	}
}
