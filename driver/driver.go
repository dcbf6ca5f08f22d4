// Package driver declares what the device core requires from driver
// instances, plus the capability interfaces concrete driver kinds
// implement. The core itself depends only on Driver and, for interrupt
// controllers, on Intc.FdtParseFunc.
package driver

import (
	"io"

	"drivercore-go/types"

	"tinygo.org/x/drivers"
)

// Driver is the minimal lifecycle every probed instance implements.
type Driver interface {
	Open() error
	Close() error
}

// ---- Interrupt controllers ----

// FdtParseFunc decodes one raw device-tree interrupt-cell group.
type FdtParseFunc func(cells []uint32) (types.IrqConfig, error)

type CpuID uint32

type Intc interface {
	Driver
	IrqEnable(irq types.IrqID) error
	IrqDisable(irq types.IrqID) error
	SetPriority(irq types.IrqID, priority uint8) error
	SetTrigger(irq types.IrqID, trigger types.Trigger) error
	SetTargetCPU(irq types.IrqID, cpu CpuID) error
	// FdtParseFunc returns the interrupt-cell decoder, or nil when the
	// controller cannot decode device-tree specifiers.
	FdtParseFunc() FdtParseFunc
}

// ---- Clocks ----

type Clk interface {
	Driver
	Enable() error
	Rate(id types.ClockID) (uint64, error)
	SetRate(id types.ClockID, hz uint64) error
}

// ---- Power ----

type Power interface {
	Driver
	Shutdown() error
}

// ---- Serial ----

// Serial splits a port into independently owned halves. A taken half is
// handed back when it is closed; a second Take before that returns nil.
type Serial interface {
	Driver
	// HandleIRQ is called from the interrupt handler.
	HandleIRQ()
	TakeTx() io.WriteCloser
	TakeRx() io.ReadCloser
}

// ---- Block ----

type Block interface {
	Driver
	NumBlocks() uint64
	BlockSize() int
	// ReadBlock fills buf starting at block id; len(buf) may span blocks.
	ReadBlock(id uint64, buf []byte) error
	WriteBlock(id uint64, buf []byte) error
	Flush() error
}

// ---- Buses ----

// I2CBus is an I2C controller usable by TinyGo sensor drivers.
type I2CBus interface {
	Driver
	drivers.I2C
}

// PciAddress names one function in PCI configuration space.
type PciAddress struct {
	Segment  uint16
	Bus      uint8
	Device   uint8
	Function uint8
}

// PCIeController gives access to configuration space behind a host
// bridge.
type PCIeController interface {
	Driver
	ReadConfig(addr PciAddress, offset uint16) uint32
	WriteConfig(addr PciAddress, offset uint16, value uint32)
	// BusRange is the inclusive range of bus numbers to enumerate.
	BusRange() (first, last uint8)
}

// Empty is a driver with no behaviour, used to mark a node as claimed.
type Empty struct{}

func (Empty) Open() error  { return nil }
func (Empty) Close() error { return nil }
