package builtin

import (
	"testing"

	"github.com/u-root/u-root/pkg/dt"

	"drivercore-go/driver"
	"drivercore-go/drivers/aht20"
	"drivercore-go/drivers/ecam"
	"drivercore-go/drivers/gic"
	"drivercore-go/drivers/pl011"
	"drivercore-go/drivers/ramblk"
	"drivercore-go/drivers/shtc3"
	"drivercore-go/dtree"
	"drivercore-go/manager"
	"drivercore-go/types"
)

func virt() *dt.Node {
	return dtree.NewNode("", dtree.Props(
		dtree.Str("compatible", "linux,dummy-virt"),
		dtree.Cells("#address-cells", 2),
		dtree.Cells("#size-cells", 2),
		dtree.Cells("interrupt-parent", 1),
	),
		dtree.NewNode("chosen", dtree.Props(dtree.Str("stdout-path", "/pl011@9000000"))),
		dtree.NewNode("intc@8000000", dtree.Props(
			dtree.Str("compatible", "arm,cortex-a15-gic"),
			dtree.Flag("interrupt-controller"),
			dtree.Cells("#interrupt-cells", 3),
			dtree.Cells("phandle", 1),
			dtree.Cells("reg", 0, 0x08000000, 0, 0x10000),
		)),
		dtree.NewNode("apb-pclk", dtree.Props(
			dtree.Str("compatible", "fixed-clock"),
			dtree.Cells("#clock-cells", 0),
			dtree.Cells("clock-frequency", 24000000),
			dtree.Cells("phandle", 2),
		)),
		dtree.NewNode("pl011@9000000", dtree.Props(
			dtree.Str("compatible", "arm,pl011", "arm,primecell"),
			dtree.Cells("reg", 0, 0x09000000, 0, 0x1000),
			dtree.Cells("interrupts", 0, 1, 4),
			dtree.Cells("clocks", 2, 2),
			dtree.Str("clock-names", "uartclk", "apb_pclk"),
		)),
		dtree.NewNode("pcie@10000000", dtree.Props(
			dtree.Str("compatible", "pci-host-ecam-generic"),
			dtree.Cells("bus-range", 0, 0),
		)),
		dtree.NewNode("i2c@a000000", dtree.Props(
			dtree.Str("compatible", "drivercore,i2c-host"),
			dtree.Cells("#address-cells", 1),
			dtree.Cells("#size-cells", 0),
		),
			dtree.NewNode("sensor@70", dtree.Props(
				dtree.Str("compatible", "sensirion,shtc3"),
				dtree.Cells("reg", 0x70),
			)),
			dtree.NewNode("sensor@38", dtree.Props(
				dtree.Str("compatible", "aosong,aht20"),
				dtree.Cells("reg", 0x38),
			)),
		),
		dtree.NewNode("disk@40000000", dtree.Props(
			dtree.Str("compatible", "drivercore,ram-block"),
			dtree.Cells("reg", 0, 0x40000000, 0, 0x100000),
		)),
		dtree.NewNode("poweroff", dtree.Props(
			dtree.Str("compatible", "syscon-poweroff"),
			dtree.Cells("offset", 0),
			dtree.Cells("value", 0x5555),
		)),
	)
}

func TestDeclaredDriversProbeVirtBoard(t *testing.T) {
	tr, err := dtree.FromRoot(virt())
	if err != nil {
		t.Fatal(err)
	}
	m, err := manager.New(manager.Config{Tree: tr})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.ProbePreKernel(); err != nil {
		t.Fatal(err)
	}
	if n := m.Registry().Len(); n != 2 {
		t.Fatalf("pre-kernel pass: %d devices", n)
	}
	if err := m.ProbeAll(true); err != nil {
		t.Fatal(err)
	}
	if n := m.Registry().Len(); n != 9 {
		t.Fatalf("full pass: %d devices", n)
	}
	if len(m.Pending()) != 0 {
		t.Fatalf("pending after full pass: %v", m.Pending())
	}

	uart, ok := manager.GetOne[driver.Serial](m)
	if !ok {
		t.Fatal("no serial port")
	}
	d := uart.Descriptor()
	if len(d.Irqs) != 1 || d.Irqs[0] != (types.IrqConfig{Irq: 33, Trigger: types.LevelHigh}) {
		t.Fatalf("uart irqs %+v", d.Irqs)
	}
	if c, ok := d.ClockByName("uartclk"); !ok || d.IrqParent == nil || c.Device == *d.IrqParent {
		t.Fatalf("uart clocks %+v", d.Clocks)
	}

	g, err := uart.Lock()
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Driver().Open(); err != nil {
		t.Fatal(err)
	}
	port := g.Driver().(*pl011.Port)
	if i, f := port.Divisor(); i != 13 || f != 1 {
		t.Fatalf("divisor %d/%d", i, f)
	}
	g.Unlock()

	intc, _ := manager.GetOne[*gic.Distributor](m)
	dist, _ := intc.ForceUse()
	if !dist.Enabled(33) {
		t.Fatal("uart irq not enabled at the gic")
	}
	if _, ok := manager.GetOne[*shtc3.Sensor](m); !ok {
		t.Fatal("shtc3 under i2c controller not probed")
	}
	if _, ok := manager.GetOne[*aht20.Sensor](m); !ok {
		t.Fatal("aht20 under i2c controller not probed")
	}
}

func TestCustomOptionsReachPCI(t *testing.T) {
	tr, err := dtree.FromRoot(virt())
	if err != nil {
		t.Fatal(err)
	}
	recs := Records(Options{PCI: ecam.Options{Functions: []ecam.Function{
		{Device: 1, Vendor: 0x1af4, ID: 0x1001, Class: 0x01},
		{Device: 2, Vendor: 0x8086, ID: 0x100e, Class: 0x02},
	}}})
	m, err := manager.New(manager.Config{Tree: tr, Records: recs})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	for i := 0; i < 2; i++ {
		if err := m.ProbeAll(false); err != nil {
			t.Fatal(err)
		}
	}
	disks := manager.GetList[*ramblk.Disk](m)
	if len(disks) != 2 {
		t.Fatalf("want tree disk and pci disk, have %d", len(disks))
	}
	if blk, _ := disks[1].ForceUse(); blk.NumBlocks() != ramblk.DefaultPciBlocks {
		t.Fatalf("pci disk has %d blocks", blk.NumBlocks())
	}
}
