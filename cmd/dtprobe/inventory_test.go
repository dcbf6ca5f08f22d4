package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"drivercore-go/dtree"
	"drivercore-go/internal/config"
)

func board(t *testing.T) *dtree.Tree {
	t.Helper()
	tr, err := dtree.FromRoot(dtree.NewNode("", dtree.Props(
		dtree.Cells("#address-cells", 2),
		dtree.Cells("#size-cells", 2),
		dtree.Cells("interrupt-parent", 1),
	),
		dtree.NewNode("chosen", dtree.Props(
			dtree.Str("bootargs", "console=ttyAMA0 'root=/dev/vda 1'"),
		)),
		dtree.NewNode("intc@8000000", dtree.Props(
			dtree.Str("compatible", "arm,gic-400"),
			dtree.Flag("interrupt-controller"),
			dtree.Cells("#interrupt-cells", 3),
			dtree.Cells("phandle", 1),
		)),
		dtree.NewNode("clk", dtree.Props(
			dtree.Str("compatible", "fixed-clock"),
			dtree.Cells("#clock-cells", 0),
			dtree.Cells("clock-frequency", 24000000),
			dtree.Cells("phandle", 2),
		)),
		dtree.NewNode("uart@9000000", dtree.Props(
			dtree.Str("compatible", "arm,pl011"),
			dtree.Cells("reg", 0, 0x09000000, 0, 0x1000),
			dtree.Cells("interrupts", 0, 1, 4),
			dtree.Cells("clocks", 2),
			dtree.Str("clock-names", "uartclk"),
		)),
		dtree.NewNode("pcie@10000000", dtree.Props(
			dtree.Str("compatible", "pci-host-ecam-generic"),
		)),
	))
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestProbeTreeInventory(t *testing.T) {
	cfg, err := config.Parse([]byte(`
pci:
  functions:
    - {device: 3, vendor: 0x1af4, id: 0x1042, class: 1}
`))
	if err != nil {
		t.Fatal(err)
	}
	inv, err := probeTree(board(t), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.Devices) != 5 {
		t.Fatalf("devices %+v", inv.Devices)
	}
	uart := inv.Devices[3]
	if uart.Name != "pl011" || uart.IrqParent != inv.Devices[0].ID {
		t.Fatalf("uart entry %+v", uart)
	}
	if len(uart.Irqs) != 1 || uart.Irqs[0].Irq != 33 || len(uart.Clocks) != 1 || uart.Clocks[0].Name != "uartclk" {
		t.Fatalf("uart resources %+v", uart)
	}
	if last := inv.Devices[4]; !strings.Contains(last.Driver, "ramblk.Disk") {
		t.Fatalf("pci device %+v", last)
	}
	if inv.Chosen == nil || len(inv.Chosen.Bootargs) != 2 || inv.Chosen.Bootargs[1] != "root=/dev/vda 1" {
		t.Fatalf("chosen %+v", inv.Chosen)
	}

	var js bytes.Buffer
	if err := writeInventory(&js, "json", inv); err != nil {
		t.Fatal(err)
	}
	var back inventory
	if err := json.Unmarshal(js.Bytes(), &back); err != nil || len(back.Devices) != 5 {
		t.Fatalf("json output: %v\n%s", err, js.String())
	}
	var y bytes.Buffer
	if err := writeInventory(&y, "yaml", inv); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(y.String(), "irq_parent: "+inv.Devices[0].ID) {
		t.Fatalf("yaml output:\n%s", y.String())
	}
}

func TestPreKernelOnlyLeavesPending(t *testing.T) {
	cfg := config.Default()
	cfg.PreKernelOnly = true
	inv, err := probeTree(board(t), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.Devices) != 2 {
		t.Fatalf("devices %+v", inv.Devices)
	}
	if len(inv.Pending) == 0 {
		t.Fatal("post-kernel records not pending")
	}
}

func TestRunArguments(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.dtb")
	if err := os.WriteFile(junk, []byte("not a blob"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "dtprobe.yaml")
	if err := os.WriteFile(cfgPath, []byte("blob: "+junk+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run([]string{"--help"}, io.Discard, io.Discard); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("help: %v", err)
	}
	for _, args := range [][]string{
		{},
		{"extra"},
		{"--blob", junk, "--output", "xml"},
		{"--blob", junk, "--log-level", "loud"},
		{"--blob", filepath.Join(dir, "missing.dtb")},
		{"--blob", junk},
		{"--config", cfgPath},
	} {
		if err := run(args, io.Discard, io.Discard); err == nil {
			t.Errorf("run %q succeeded", args)
		}
	}
}
