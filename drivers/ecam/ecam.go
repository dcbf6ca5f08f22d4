// Package ecam is a generic ECAM PCIe host bridge. On a hosted system its
// configuration space is a table of simulated functions.
package ecam

import (
	"sync"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/pcie"
	"drivercore-go/register"
)

// Function describes one simulated PCI function.
type Function struct {
	Bus      uint8  `yaml:"bus" json:"bus"`
	Device   uint8  `yaml:"device" json:"device"`
	Function uint8  `yaml:"function" json:"function"`
	Vendor   uint16 `yaml:"vendor" json:"vendor"`
	ID       uint16 `yaml:"id" json:"id"`
	Class    uint8  `yaml:"class" json:"class"`
	Subclass uint8  `yaml:"subclass" json:"subclass"`
	// MultiFunction sets bit 7 of the header type on function 0.
	MultiFunction bool `yaml:"multi_function" json:"multi_function"`
}

type Options struct {
	Functions []Function
}

type Host struct {
	mu          sync.Mutex
	first, last uint8
	space       map[driver.PciAddress]map[uint16]uint32
	open        bool
}

// New builds a host bridge for buses first..last holding fns.
func New(first, last uint8, fns []Function) *Host {
	h := &Host{first: first, last: last, space: map[driver.PciAddress]map[uint16]uint32{}}
	for _, f := range fns {
		var hdr uint32
		if f.MultiFunction {
			hdr = 0x80 << 16
		}
		addr := driver.PciAddress{Bus: f.Bus, Device: f.Device, Function: f.Function}
		h.space[addr] = map[uint16]uint32{
			pcie.RegVendorID:   uint32(f.ID)<<16 | uint32(f.Vendor),
			pcie.RegClassRev:   uint32(f.Class)<<24 | uint32(f.Subclass)<<16,
			pcie.RegHeaderType: hdr,
		}
	}
	return h
}

func Record(opts Options) register.Record {
	return register.Record{
		Name:     "pci-host-ecam",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault - 2,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"pci-host-ecam-generic"},
			OnProbe: func(info register.FdtInfo, _ *device.PlatformDevice) (driver.Driver, error) {
				first, last := uint8(0), uint8(0xff)
				r, ok, err := info.Node.U32s("bus-range")
				if err != nil {
					return nil, err
				}
				if ok {
					if len(r) != 2 || r[0] > r[1] || r[1] > 0xff {
						return nil, errcode.New(errcode.MalformedTree, "ecam", info.Node.Path()+": bad bus-range")
					}
					first, last = uint8(r[0]), uint8(r[1])
				}
				return New(first, last, opts.Functions), nil
			},
		}},
	}
}

func (h *Host) Open() error {
	h.mu.Lock()
	h.open = true
	h.mu.Unlock()
	return nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	h.open = false
	h.mu.Unlock()
	return nil
}

func (h *Host) BusRange() (uint8, uint8) { return h.first, h.last }

// ReadConfig returns all ones for absent functions, as the hardware does.
func (h *Host) ReadConfig(addr driver.PciAddress, off uint16) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	regs, ok := h.space[key(addr)]
	if !ok || !h.open {
		return 0xffffffff
	}
	return regs[off&^3]
}

// WriteConfig stores to present functions. Identification registers are
// read-only.
func (h *Host) WriteConfig(addr driver.PciAddress, off uint16, v uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	regs, ok := h.space[key(addr)]
	off &^= 3
	if !ok || !h.open || off == pcie.RegVendorID || off == pcie.RegClassRev {
		return
	}
	regs[off] = v
}

func key(a driver.PciAddress) driver.PciAddress {
	a.Segment = 0
	return a
}
