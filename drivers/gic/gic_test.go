package gic

import (
	"testing"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/types"
)

var _ driver.Intc = (*Distributor)(nil)

func TestParseCells(t *testing.T) {
	cases := []struct {
		cells []uint32
		irq   types.IrqID
		trig  types.Trigger
		fail  bool
	}{
		{[]uint32{0, 1, 4}, 33, types.LevelHigh, false},
		{[]uint32{0, 2, 1}, 34, types.EdgeRising, false},
		{[]uint32{1, 14, 8}, 30, types.LevelLow, false},
		{[]uint32{1, 16, 4}, 0, 0, true},
		{[]uint32{2, 0, 4}, 0, 0, true},
		{[]uint32{0, 1000, 4}, 0, 0, true},
		{[]uint32{0, 987, 4}, 1019, types.LevelHigh, false},
		{[]uint32{0, 988, 4}, 0, 0, true},
		{[]uint32{0, 0xfffffff0, 4}, 0, 0, true},
		{[]uint32{1, 0xfffffff5, 1}, 0, 0, true},
		{[]uint32{0, 1}, 0, 0, true},
	}
	for _, tc := range cases {
		cfg, err := ParseCells(tc.cells)
		if tc.fail {
			if err == nil {
				t.Errorf("%v: expected error, got %+v", tc.cells, cfg)
			}
			continue
		}
		if err != nil || cfg.Irq != tc.irq || cfg.Trigger != tc.trig {
			t.Errorf("%v: got %+v, %v", tc.cells, cfg, err)
		}
	}
}

func TestDistributorState(t *testing.T) {
	d := New(0x08000000)
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	if err := d.IrqEnable(33); err != nil || !d.Enabled(33) {
		t.Fatal("enable failed")
	}
	if err := d.SetTrigger(33, types.EdgeRising); err != nil || d.Trigger(33) != types.EdgeRising {
		t.Fatal("trigger not stored")
	}
	if err := d.SetTrigger(33, types.EdgeBoth); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("edge-both accepted: %v", err)
	}
	if err := d.SetTargetCPU(20, 1); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("ppi target accepted: %v", err)
	}
	if err := d.IrqEnable(MaxIrq); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("out of range irq accepted: %v", err)
	}
	_ = d.Close()
	if d.Enabled(33) {
		t.Fatal("Close left lines enabled")
	}
}
