// Package ramblk is a memory-backed block device. It binds to
// "drivercore,ram-block" nodes (capacity from reg) and to virtio block
// functions on PCI.
package ramblk

import (
	"fmt"
	"sync"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/pcie"
	"drivercore-go/register"
)

const (
	DefaultBlockSize = 512
	// DefaultPciBlocks sizes disks found on PCI, which carry no capacity
	// this driver can read.
	DefaultPciBlocks = 2048

	vendorVirtio      = 0x1af4
	deviceVirtioBlk   = 0x1001
	deviceVirtioBlkV1 = 0x1042
	classMassStorage  = 0x01
)

type Disk struct {
	mu     sync.RWMutex
	bs     int
	data   []byte
	dirty  bool
	closed bool
}

// New returns a zeroed disk of n blocks of bs bytes.
func New(n uint64, bs int) *Disk {
	return &Disk{bs: bs, data: make([]byte, n*uint64(bs))}
}

func Record() register.Record {
	return register.Record{
		Name:     "ram-block",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault,
		ProbeKinds: []register.ProbeKind{
			register.Fdt{Compatibles: []string{"drivercore,ram-block"}, OnProbe: probeFdt},
			register.Pci{OnProbe: probePci},
		},
	}
}

func probeFdt(info register.FdtInfo, _ *device.PlatformDevice) (driver.Driver, error) {
	bs := uint32(DefaultBlockSize)
	if v, ok, err := info.Node.U32("block-size"); err != nil {
		return nil, err
	} else if ok {
		bs = v
	}
	if bs == 0 || bs&(bs-1) != 0 {
		return nil, errcode.New(errcode.MalformedTree, "ramblk", fmt.Sprintf("%s: block-size %d", info.Node.Path(), bs))
	}
	regs, err := info.Node.Reg()
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 || regs[0].Size < uint64(bs) {
		return nil, errcode.New(errcode.MalformedTree, "ramblk", info.Node.Path()+": no usable reg")
	}
	return New(regs[0].Size/uint64(bs), int(bs)), nil
}

func probePci(ep *pcie.Endpoint, dev *device.PlatformDevice) (driver.Driver, error) {
	if ep.VendorID != vendorVirtio || ep.Class != classMassStorage {
		return nil, errcode.NotMatch
	}
	if ep.DeviceID != deviceVirtioBlk && ep.DeviceID != deviceVirtioBlkV1 {
		return nil, errcode.NotMatch
	}
	ep.EnableMemory()
	dev.Register(New(DefaultPciBlocks, DefaultBlockSize))
	return nil, nil
}

func (d *Disk) Open() error {
	d.mu.Lock()
	d.closed = false
	d.mu.Unlock()
	return nil
}

func (d *Disk) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Disk) NumBlocks() uint64 { return uint64(len(d.data) / d.bs) }
func (d *Disk) BlockSize() int    { return d.bs }

func (d *Disk) span(id uint64, n int) (int, error) {
	if n%d.bs != 0 {
		return 0, errcode.New(errcode.InvalidParams, "ramblk", fmt.Sprintf("length %d is not a multiple of %d", n, d.bs))
	}
	end := id + uint64(n/d.bs)
	if end < id || end > d.NumBlocks() {
		return 0, errcode.New(errcode.InvalidParams, "ramblk", fmt.Sprintf("blocks %d..%d beyond %d", id, end, d.NumBlocks()))
	}
	if d.closed {
		return 0, errcode.New(errcode.DeviceReleased, "ramblk", "closed")
	}
	return int(id) * d.bs, nil
}

func (d *Disk) ReadBlock(id uint64, buf []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	off, err := d.span(id, len(buf))
	if err != nil {
		return err
	}
	copy(buf, d.data[off:])
	return nil
}

func (d *Disk) WriteBlock(id uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	off, err := d.span(id, len(buf))
	if err != nil {
		return err
	}
	copy(d.data[off:], buf)
	d.dirty = true
	return nil
}

func (d *Disk) Flush() error {
	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
	return nil
}

// Dirty reports whether writes happened since the last Flush.
func (d *Disk) Dirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dirty
}
