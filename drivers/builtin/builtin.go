// Package builtin collects the bundled drivers. Importing it declares
// them with default options; Records builds the same set with custom
// options for manager.Config.Records.
package builtin

import (
	"drivercore-go/drivers/aht20"
	"drivercore-go/drivers/ecam"
	"drivercore-go/drivers/fixedclk"
	"drivercore-go/drivers/gic"
	"drivercore-go/drivers/i2chost"
	"drivercore-go/drivers/pl011"
	"drivercore-go/drivers/poweroff"
	"drivercore-go/drivers/ramblk"
	"drivercore-go/drivers/shtc3"
	"drivercore-go/register"
)

type Options struct {
	Serial   pl011.Options
	I2C      i2chost.Options
	AHT20    aht20.Options
	PCI      ecam.Options
	PowerOff poweroff.Options
}

func Records(o Options) []register.Record {
	return []register.Record{
		gic.Record(),
		fixedclk.Record(),
		ecam.Record(o.PCI),
		i2chost.Record(o.I2C),
		pl011.Record(o.Serial),
		shtc3.Record(),
		aht20.Record(o.AHT20),
		ramblk.Record(),
		poweroff.Record(o.PowerOff),
	}
}

func init() {
	for _, r := range Records(Options{}) {
		register.Declare(r)
	}
}
