package types

import (
	"strconv"

	"drivercore-go/x/idgen"
)

// DeviceID identifies one constructed device for the process lifetime.
type DeviceID uint64

// RegisterID identifies one declared driver candidate.
type RegisterID uint64

var (
	deviceIDs   idgen.Counter[uint64]
	registerIDs idgen.Counter[uint64]
)

// NewDeviceID allocates a fresh device identifier. Identifiers are never
// reused.
func NewDeviceID() DeviceID { return DeviceID(deviceIDs.Next()) }

// NewRegisterID allocates a fresh candidate identifier.
func NewRegisterID() RegisterID { return RegisterID(registerIDs.Next()) }

func (id DeviceID) String() string   { return "dev" + strconv.FormatUint(uint64(id), 10) }
func (id RegisterID) String() string { return "reg" + strconv.FormatUint(uint64(id), 10) }
