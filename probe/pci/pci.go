// Package pci probes endpoints found behind registered PCIe controllers.
//
// Unlike the device-tree backend it walks hardware first: every endpoint
// is offered to each record with a Pci rule in priority order until one
// accepts it. A controller remembers which vendor/device pairs it has
// bound so repeated passes do not probe them again.
package pci

import (
	"sync"

	"github.com/pion/logging"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	ilog "drivercore-go/internal/logging"
	"drivercore-go/pcie"
	"drivercore-go/probe"
	"drivercore-go/register"
	"drivercore-go/types"
)

type Config struct {
	Registry      *device.Registry
	LoggerFactory logging.LoggerFactory
}

type ident struct{ vendor, device uint16 }

type enumerator struct {
	dev     device.Device[driver.PCIeController]
	segment uint16
	probed  map[ident]struct{}
}

type Backend struct {
	reg *device.Registry
	log logging.LeveledLogger

	mu    sync.Mutex
	ctrls []*enumerator
	known map[types.DeviceID]bool
}

func New(cfg Config) (*Backend, error) {
	if cfg.Registry == nil {
		return nil, errcode.New(errcode.InvalidParams, "pci.new", "registry is required")
	}
	return &Backend{
		reg:   cfg.Registry,
		log:   ilog.Scope(cfg.LoggerFactory, "pci"),
		known: map[types.DeviceID]bool{},
	}, nil
}

// Probe offers every unbound endpoint of every controller to entries.
func (b *Backend) Probe(eng *probe.Engine, entries []register.Entry, strict bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refresh(eng, strict); err != nil {
		return err
	}
	rules := pciRules(entries)
	if len(rules) == 0 {
		return nil
	}
	for _, en := range b.ctrls {
		if err := b.probeController(eng, en, rules, strict); err != nil {
			return err
		}
	}
	return nil
}

// refresh opens controllers registered since the last pass.
func (b *Backend) refresh(eng *probe.Engine, strict bool) error {
	for _, dev := range device.GetList[driver.PCIeController](b.reg) {
		if b.known[dev.ID()] {
			continue
		}
		b.known[dev.ID()] = true
		g, err := dev.Lock()
		if err == nil {
			err = g.Driver().Open()
			g.Unlock()
		}
		if err != nil {
			if err := eng.Fail(dev.Descriptor().Name, "", err, strict); err != nil {
				return err
			}
			continue
		}
		b.ctrls = append(b.ctrls, &enumerator{
			dev:     dev,
			segment: uint16(len(b.ctrls)),
			probed:  map[ident]struct{}{},
		})
		b.log.Debugf("controller %s is segment %d", dev.ID(), len(b.ctrls)-1)
	}
	return nil
}

type rule struct {
	entry   register.Entry
	onProbe register.PciProbeFunc
}

func pciRules(entries []register.Entry) []rule {
	var out []rule
	for _, e := range entries {
		for _, k := range e.Record.ProbeKinds {
			if r, ok := k.(register.Pci); ok && r.OnProbe != nil {
				out = append(out, rule{entry: e, onProbe: r.OnProbe})
				break
			}
		}
	}
	return out
}

func (b *Backend) probeController(eng *probe.Engine, en *enumerator, rules []rule, strict bool) error {
	g, err := en.dev.Lock()
	if err != nil {
		if errcode.Of(err) == errcode.DeviceReleased {
			return nil
		}
		return err
	}
	defer g.Unlock()

	for _, ep := range pcie.Enumerate(g.Driver(), en.segment) {
		id := ident{ep.VendorID, ep.DeviceID}
		if _, done := en.probed[id]; done {
			continue
		}
		name, err := b.probeEndpoint(eng, ep, rules)
		if err != nil {
			if err := eng.Fail(name, ep.String(), err, strict); err != nil {
				return err
			}
			continue
		}
		if name != "" {
			en.probed[id] = struct{}{}
		}
	}
	return nil
}

// probeEndpoint returns the name of the record that bound ep, "" when
// none did.
func (b *Backend) probeEndpoint(eng *probe.Engine, ep *pcie.Endpoint, rules []rule) (string, error) {
	for _, r := range rules {
		name := r.entry.Record.Name
		onProbe := r.onProbe
		err := eng.Exec(r.entry, probe.Task{
			Target: ep.String(),
			Run: func() (probe.Result, error) {
				desc := types.Descriptor{DeviceID: types.NewDeviceID(), Name: name}
				pdev := device.NewPlatformDevice(desc, b.reg)
				drv, err := onProbe(ep, pdev)
				if err != nil {
					return probe.Result{}, err
				}
				if drv, err = probe.Resolve(name, drv, pdev); err != nil {
					return probe.Result{}, err
				}
				out := pdev.Descriptor
				out.DeviceID = desc.DeviceID
				return probe.Result{Descriptor: out, Driver: drv}, nil
			},
		})
		if err == nil {
			return name, nil
		}
		if errcode.IsSoft(err) {
			continue
		}
		return name, err
	}
	b.log.Tracef("no driver for %s", ep)
	return "", nil
}
