package types

// IrqID is a controller-relative interrupt number.
type IrqID uint32

// Trigger selects how an interrupt line signals.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
	LevelHigh
	LevelLow
)

func (t Trigger) String() string {
	switch t {
	case EdgeRising:
		return "edge_rising"
	case EdgeFalling:
		return "edge_falling"
	case EdgeBoth:
		return "edge_both"
	case LevelHigh:
		return "level_high"
	case LevelLow:
		return "level_low"
	default:
		return "none"
	}
}

// IrqConfig is one decoded interrupt: the line on the parent controller
// and its trigger mode.
type IrqConfig struct {
	Irq     IrqID
	Trigger Trigger
}
