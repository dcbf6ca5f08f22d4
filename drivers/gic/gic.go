// Package gic models an ARM generic interrupt controller distributor.
//
// Interrupt specifiers use the standard three-cell binding:
//
//	<type number flags>
//
// type 0 is an SPI (irq = number + 32), type 1 a PPI (irq = number + 16).
// The low four flag bits select the trigger.
package gic

import (
	"fmt"
	"sync"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/register"
	"drivercore-go/types"
)

const (
	// MaxIrq is one past the highest valid interrupt id.
	MaxIrq = 1020

	spiBase = 32
	ppiBase = 16

	typeSPI = 0
	typePPI = 1
)

// Compatibles lists the bindings this driver accepts.
var Compatibles = []string{"arm,cortex-a15-gic", "arm,cortex-a9-gic", "arm,gic-400"}

type line struct {
	enabled  bool
	priority uint8
	trigger  types.Trigger
	target   driver.CpuID
}

// Distributor keeps per-line state. All methods are safe for concurrent
// use, although the device registry already serialises access.
type Distributor struct {
	mu     sync.Mutex
	open   bool
	lines  map[types.IrqID]*line
	region uint64
}

func New(base uint64) *Distributor {
	return &Distributor{lines: map[types.IrqID]*line{}, region: base}
}

// Record declares the driver for the device-tree binding.
func Record() register.Record {
	return register.Record{
		Name:     "gic",
		Level:    register.PreKernel,
		Priority: register.PriorityIntc,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: Compatibles,
			OnProbe:     probe,
		}},
	}
}

func probe(info register.FdtInfo, _ *device.PlatformDevice) (driver.Driver, error) {
	if !info.Node.HasProperty("interrupt-controller") {
		return nil, errcode.NotMatch
	}
	regs, err := info.Node.Reg()
	if err != nil {
		return nil, err
	}
	var base uint64
	if len(regs) > 0 {
		base = regs[0].Address
	}
	return New(base), nil
}

func (d *Distributor) Open() error {
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

func (d *Distributor) Close() error {
	d.mu.Lock()
	d.open = false
	for _, l := range d.lines {
		l.enabled = false
	}
	d.mu.Unlock()
	return nil
}

// Base returns the distributor's register base from the tree.
func (d *Distributor) Base() uint64 { return d.region }

func (d *Distributor) with(irq types.IrqID, f func(*line)) error {
	if irq >= MaxIrq {
		return errcode.New(errcode.InvalidParams, "gic", fmt.Sprintf("irq %d out of range", irq))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lines[irq]
	if !ok {
		l = &line{trigger: types.LevelHigh}
		d.lines[irq] = l
	}
	f(l)
	return nil
}

func (d *Distributor) IrqEnable(irq types.IrqID) error {
	return d.with(irq, func(l *line) { l.enabled = true })
}

func (d *Distributor) IrqDisable(irq types.IrqID) error {
	return d.with(irq, func(l *line) { l.enabled = false })
}

func (d *Distributor) SetPriority(irq types.IrqID, p uint8) error {
	return d.with(irq, func(l *line) { l.priority = p })
}

func (d *Distributor) SetTrigger(irq types.IrqID, t types.Trigger) error {
	switch t {
	case types.EdgeRising, types.LevelHigh:
	default:
		// The distributor only distinguishes edge from level.
		return errcode.New(errcode.Unsupported, "gic", "trigger "+t.String())
	}
	return d.with(irq, func(l *line) { l.trigger = t })
}

func (d *Distributor) SetTargetCPU(irq types.IrqID, cpu driver.CpuID) error {
	if irq < spiBase {
		return errcode.New(errcode.Unsupported, "gic", "banked interrupts have no target")
	}
	return d.with(irq, func(l *line) { l.target = cpu })
}

// Enabled reports whether irq is enabled.
func (d *Distributor) Enabled(irq types.IrqID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lines[irq]
	return ok && l.enabled
}

// Trigger returns the configured trigger of irq.
func (d *Distributor) Trigger(irq types.IrqID) types.Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lines[irq]; ok {
		return l.trigger
	}
	return types.LevelHigh
}

func (d *Distributor) FdtParseFunc() driver.FdtParseFunc { return ParseCells }

// ParseCells decodes one three-cell interrupt specifier.
func ParseCells(c []uint32) (types.IrqConfig, error) {
	if len(c) != 3 {
		return types.IrqConfig{}, fmt.Errorf("gic: want 3 cells, have %d", len(c))
	}
	// Range checks come before adding the base so a huge cell cannot wrap.
	var irq uint32
	switch c[0] {
	case typeSPI:
		if c[1] >= MaxIrq-spiBase {
			return types.IrqConfig{}, fmt.Errorf("gic: spi %d out of range", c[1])
		}
		irq = c[1] + spiBase
	case typePPI:
		if c[1] >= spiBase-ppiBase {
			return types.IrqConfig{}, fmt.Errorf("gic: ppi %d out of range", c[1])
		}
		irq = c[1] + ppiBase
	default:
		return types.IrqConfig{}, fmt.Errorf("gic: unknown interrupt type %d", c[0])
	}
	return types.IrqConfig{Irq: types.IrqID(irq), Trigger: trigger(c[2])}, nil
}

func trigger(flags uint32) types.Trigger {
	switch flags & 0xf {
	case 1:
		return types.EdgeRising
	case 2:
		return types.EdgeFalling
	case 3:
		return types.EdgeBoth
	case 4:
		return types.LevelHigh
	case 8:
		return types.LevelLow
	}
	return types.TriggerNone
}
