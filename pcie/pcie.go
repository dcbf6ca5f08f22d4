// Package pcie walks type-0 configuration headers behind a host bridge.
package pcie

import (
	"fmt"

	"drivercore-go/driver"
)

// Standard header offsets.
const (
	RegVendorID   = 0x00
	RegCommand    = 0x04
	RegClassRev   = 0x08
	RegHeaderType = 0x0c
	RegBar0       = 0x10
	RegIntLine    = 0x3c

	VendorNone     = 0xffff
	headerMultiFn  = 0x80
	maxDevices     = 32
	maxFunctions   = 8
	NumBars        = 6
	headerTypeMask = 0x7f
)

// Endpoint is one present PCI function. It reads configuration space
// through the controller it was found on, so it must not be used after
// the controller guard is released.
type Endpoint struct {
	Address    driver.PciAddress
	VendorID   uint16
	DeviceID   uint16
	Class      uint8
	Subclass   uint8
	ProgIF     uint8
	Revision   uint8
	HeaderType uint8

	ctrl driver.PCIeController
}

func (e *Endpoint) String() string {
	a := e.Address
	return fmt.Sprintf("%04x:%02x:%02x.%d [%04x:%04x]", a.Segment, a.Bus, a.Device, a.Function, e.VendorID, e.DeviceID)
}

// ReadConfig reads a 32-bit register of this function.
func (e *Endpoint) ReadConfig(offset uint16) uint32 { return e.ctrl.ReadConfig(e.Address, offset) }

// WriteConfig writes a 32-bit register of this function.
func (e *Endpoint) WriteConfig(offset uint16, v uint32) { e.ctrl.WriteConfig(e.Address, offset, v) }

// Bar returns base address register i (0..5) with the flag bits kept.
func (e *Endpoint) Bar(i int) (uint32, error) {
	if i < 0 || i >= NumBars {
		return 0, fmt.Errorf("bar %d out of range", i)
	}
	return e.ReadConfig(RegBar0 + uint16(i)*4), nil
}

// InterruptPin returns the legacy INTx pin (1 = INTA), 0 when unused.
func (e *Endpoint) InterruptPin() uint8 { return uint8(e.ReadConfig(RegIntLine) >> 8) }

// EnableMemory sets memory-space decoding and bus mastering.
func (e *Endpoint) EnableMemory() {
	e.WriteConfig(RegCommand, e.ReadConfig(RegCommand)|0x6)
}

// Enumerate lists every present function in the controller's bus range.
// Function 0 of a device decides whether functions 1..7 are scanned.
func Enumerate(ctrl driver.PCIeController, segment uint16) []*Endpoint {
	first, last := ctrl.BusRange()
	var out []*Endpoint
	for bus := int(first); bus <= int(last); bus++ {
		for dev := uint8(0); dev < maxDevices; dev++ {
			ep := read(ctrl, driver.PciAddress{Segment: segment, Bus: uint8(bus), Device: dev})
			if ep == nil {
				continue
			}
			out = append(out, ep)
			if ep.HeaderType&headerMultiFn == 0 {
				continue
			}
			for fn := uint8(1); fn < maxFunctions; fn++ {
				if f := read(ctrl, driver.PciAddress{Segment: segment, Bus: uint8(bus), Device: dev, Function: fn}); f != nil {
					out = append(out, f)
				}
			}
		}
	}
	return out
}

func read(ctrl driver.PCIeController, addr driver.PciAddress) *Endpoint {
	id := ctrl.ReadConfig(addr, RegVendorID)
	vendor := uint16(id)
	if vendor == VendorNone || vendor == 0 {
		return nil
	}
	cr := ctrl.ReadConfig(addr, RegClassRev)
	return &Endpoint{
		Address:    addr,
		VendorID:   vendor,
		DeviceID:   uint16(id >> 16),
		Class:      uint8(cr >> 24),
		Subclass:   uint8(cr >> 16),
		ProgIF:     uint8(cr >> 8),
		Revision:   uint8(cr),
		HeaderType: uint8(ctrl.ReadConfig(addr, RegHeaderType) >> 16),
		ctrl:       ctrl,
	}
}

// IsBridge reports whether the header is a PCI-to-PCI bridge.
func (e *Endpoint) IsBridge() bool { return e.HeaderType&headerTypeMask == 1 }
