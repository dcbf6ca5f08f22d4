package pci

import (
	"errors"
	"testing"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/pcie"
	"drivercore-go/probe"
	"drivercore-go/register"
	"drivercore-go/types"
)

type host struct {
	driver.Empty
	opened  int
	openErr error
	space   map[driver.PciAddress]uint32
}

func (h *host) Open() error { h.opened++; return h.openErr }

func (h *host) ReadConfig(a driver.PciAddress, off uint16) uint32 {
	id, ok := h.space[a]
	switch {
	case !ok:
		return 0xffffffff
	case off == pcie.RegVendorID:
		return id
	}
	return 0
}

func (h *host) WriteConfig(driver.PciAddress, uint16, uint32) {}
func (h *host) BusRange() (uint8, uint8)                      { return 0, 0 }

type endpoint struct{ driver.Empty }

func newHost() *host {
	return &host{space: map[driver.PciAddress]uint32{
		{Device: 1}: 0x10011af4,
		{Device: 2}: 0x100e8086,
	}}
}

// record accepts endpoints from vendor and counts offers in seen.
func record(name string, prio register.Priority, vendor uint16, seen map[string]int) register.Record {
	return register.Record{
		Name:     name,
		Priority: prio,
		ProbeKinds: []register.ProbeKind{register.Pci{OnProbe: func(ep *pcie.Endpoint, _ *device.PlatformDevice) (driver.Driver, error) {
			seen[name]++
			if ep.VendorID != vendor {
				return nil, errcode.NotMatch
			}
			return &endpoint{}, nil
		}}},
	}
}

func setup(t *testing.T, h *host, recs ...register.Record) (*Backend, *probe.Engine, *register.Table) {
	t.Helper()
	reg := device.NewRegistry()
	if err := reg.Insert(types.NewDeviceID(), h, types.Descriptor{Name: "host"}); err != nil {
		t.Fatalf("insert host: %v", err)
	}
	b, err := New(Config{Registry: reg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tb := register.NewTable()
	tb.Append(recs...)
	return b, probe.NewEngine(reg, tb, nil), tb
}

func TestBindsEachEndpointOnce(t *testing.T) {
	h := newHost()
	seen := map[string]int{}
	b, eng, tb := setup(t, h,
		record("virtio", 1, 0x1af4, seen),
		record("e1000", 2, 0x8086, seen),
	)
	entries := tb.Pending()
	for i := 0; i < 2; i++ {
		if err := b.Probe(eng, entries, true); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if h.opened != 1 {
		t.Errorf("host opened %d times", h.opened)
	}
	if n := len(device.GetList[*endpoint](eng.Registry())); n != 2 {
		t.Errorf("bound %d endpoints", n)
	}
	// virtio is offered both endpoints and declines the intel one; e1000
	// only sees what virtio left.
	if seen["virtio"] != 2 || seen["e1000"] != 1 {
		t.Errorf("offers = %v", seen)
	}
}

func TestRetriesUnboundEndpoints(t *testing.T) {
	h := newHost()
	seen := map[string]int{}
	b, eng, tb := setup(t, h, record("virtio", 1, 0x1af4, seen))
	if err := b.Probe(eng, tb.Pending(), true); err != nil {
		t.Fatal(err)
	}
	tb.Add(record("e1000", 2, 0x8086, seen))
	if err := b.Probe(eng, tb.Pending(), true); err != nil {
		t.Fatal(err)
	}
	if n := len(device.GetList[*endpoint](eng.Registry())); n != 2 {
		t.Errorf("bound %d endpoints", n)
	}
	if seen["e1000"] != 1 {
		t.Errorf("offers = %v", seen)
	}
}

func TestControllerOpenFailure(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		fail   bool
	}{
		{"strict", true, true},
		{"lenient", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHost()
			h.openErr = errors.New("link down")
			seen := map[string]int{}
			b, eng, tb := setup(t, h, record("virtio", 1, 0x1af4, seen))
			err := b.Probe(eng, tb.Pending(), tt.strict)
			if (err != nil) != tt.fail {
				t.Fatalf("err = %v", err)
			}
			if len(seen) != 0 {
				t.Errorf("endpoints offered behind a failed controller: %v", seen)
			}
		})
	}
}

func TestNewRequiresRegistry(t *testing.T) {
	if _, err := New(Config{}); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("got %v", err)
	}
}
