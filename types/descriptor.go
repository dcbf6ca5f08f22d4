package types

// ClockID selects one output of a clock provider.
type ClockID uint32

// ClockRef is a resolved reference from a consumer to a clock provider.
type ClockRef struct {
	Device DeviceID // provider device
	ID     ClockID  // first specifier cell, 0 when the provider has #clock-cells = 0
	Cells  []uint32 // full specifier
	Name   string   // matching clock-names entry, "" if absent
}

// Descriptor is the metadata a device is built with. It is assembled once,
// right before the driver constructor runs.
type Descriptor struct {
	DeviceID  DeviceID
	Name      string
	IrqParent *DeviceID // nil when the node has no distinct interrupt parent
	Irqs      []IrqConfig
	Clocks    []ClockRef
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.IrqParent != nil {
		p := *d.IrqParent
		out.IrqParent = &p
	}
	if d.Irqs != nil {
		out.Irqs = append([]IrqConfig(nil), d.Irqs...)
	}
	if d.Clocks != nil {
		out.Clocks = make([]ClockRef, len(d.Clocks))
		for i, c := range d.Clocks {
			c.Cells = append([]uint32(nil), c.Cells...)
			out.Clocks[i] = c
		}
	}
	return out
}

// ClockByName returns the clock reference named name.
func (d *Descriptor) ClockByName(name string) (ClockRef, bool) {
	for _, c := range d.Clocks {
		if c.Name == name {
			return c, true
		}
	}
	return ClockRef{}, false
}
