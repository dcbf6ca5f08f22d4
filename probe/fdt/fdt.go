// Package fdt is the device-tree enumeration backend.
//
// New walks the tree once and gives every phandle-bearing node its device
// id up front, so a node can name its interrupt parent or clock provider
// by id before that provider has been probed. Candidates then turns a
// record's compatible lists into one task per matching enabled node.
package fdt

import (
	"fmt"
	"sync"

	"github.com/pion/logging"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/dtree"
	"drivercore-go/errcode"
	ilog "drivercore-go/internal/logging"
	"drivercore-go/probe"
	"drivercore-go/register"
	"drivercore-go/types"
)

type Config struct {
	Tree     *dtree.Tree
	Registry *device.Registry
	// LoggerFactory is optional; nil disables logging.
	LoggerFactory logging.LoggerFactory
}

type Backend struct {
	tree     *dtree.Tree
	reg      *device.Registry
	log      logging.LeveledLogger
	phandles map[dtree.Phandle]types.DeviceID

	mu      sync.Mutex
	claimed map[*dtree.Node]types.DeviceID
}

func New(cfg Config) (*Backend, error) {
	if cfg.Tree == nil || cfg.Registry == nil {
		return nil, errcode.New(errcode.InvalidParams, "fdt.new", "tree and registry are required")
	}
	b := &Backend{
		tree:     cfg.Tree,
		reg:      cfg.Registry,
		log:      ilog.Scope(cfg.LoggerFactory, "fdt"),
		phandles: map[dtree.Phandle]types.DeviceID{},
		claimed:  map[*dtree.Node]types.DeviceID{},
	}
	for _, n := range cfg.Tree.Nodes() {
		if ph, ok := n.Phandle(); ok {
			b.phandles[ph] = types.NewDeviceID()
		}
	}
	b.log.Debugf("assigned %d device ids from phandles", len(b.phandles))
	return b, nil
}

func (b *Backend) Name() string { return "fdt" }

// DeviceIDOf returns the id a node was pre-assigned or probed under.
func (b *Backend) DeviceIDOf(n *dtree.Node) (types.DeviceID, bool) {
	if ph, ok := n.Phandle(); ok {
		id, ok := b.phandles[ph]
		return id, ok
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.claimed[n]
	return id, ok
}

// Claimed reports whether a device has been built from n.
func (b *Backend) Claimed(n *dtree.Node) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.claimed[n]
	return ok
}

func (b *Backend) claim(n *dtree.Node, id types.DeviceID) {
	b.mu.Lock()
	b.claimed[n] = id
	b.mu.Unlock()
}

// Candidates returns one task per enabled, unclaimed node matching any of
// the record's device-tree rules. A node matching several rules of the
// same record is probed by the first.
func (b *Backend) Candidates(e register.Entry) ([]probe.Task, error) {
	var tasks []probe.Task
	seen := map[*dtree.Node]bool{}
	for _, k := range e.Record.ProbeKinds {
		rule, ok := k.(register.Fdt)
		if !ok || rule.OnProbe == nil {
			continue
		}
		for _, n := range b.tree.Nodes() {
			if seen[n] || !n.Enabled() || !n.IsCompatible(rule.Compatibles) || b.Claimed(n) {
				continue
			}
			seen[n] = true
			node, rec := n, e.Record
			var res probe.Result
			tasks = append(tasks, probe.Task{
				Target: node.Path(),
				Run: func() (probe.Result, error) {
					var err error
					res, err = b.run(node, rec, rule.OnProbe)
					return res, err
				},
				Claimed: func() { b.claim(node, res.Descriptor.DeviceID) },
			})
		}
	}
	return tasks, nil
}

func (b *Backend) run(node *dtree.Node, rec register.Record, onProbe register.FdtProbeFunc) (probe.Result, error) {
	b.log.Debugf("Probe [%s]->[%s]", node.Name(), rec.Name)

	desc := types.Descriptor{Name: rec.Name}
	if id, ok := b.DeviceIDOf(node); ok {
		desc.DeviceID = id
	} else {
		desc.DeviceID = types.NewDeviceID()
	}

	if err := b.resolveIrqs(node, &desc); err != nil {
		return probe.Result{}, err
	}
	if err := b.resolveClocks(node, &desc); err != nil {
		return probe.Result{}, err
	}

	pdev := device.NewPlatformDevice(desc, b.reg)
	drv, err := onProbe(register.NewFdtInfo(node, b.phandles, b.DeviceIDOf), pdev)
	if err != nil {
		return probe.Result{}, err
	}
	drv, err = probe.Resolve(rec.Name, drv, pdev)
	if err != nil {
		return probe.Result{}, err
	}
	out := pdev.Descriptor
	out.DeviceID = desc.DeviceID
	return probe.Result{Descriptor: out, Driver: drv}, nil
}

func (b *Backend) resolveIrqs(node *dtree.Node, desc *types.Descriptor) error {
	parent, ok := node.InterruptParent()
	if !ok || parent == node {
		return nil
	}
	pid, ok := b.DeviceIDOf(parent)
	if !ok {
		return nil
	}
	desc.IrqParent = &pid

	groups, err := node.Interrupts()
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}
	if !b.reg.Has(pid) {
		b.log.Debugf("irq parent %s of [%s] not probed yet, irqs omitted", parent.Name(), node.Name())
		return nil
	}

	intc, err := device.Get[driver.Intc](b.reg, pid)
	if err != nil {
		if errcode.Of(err) == errcode.TypeNotMatch {
			return errcode.Wrap(errcode.IrqParserMissing, "fdt.irq", err)
		}
		return err
	}
	g, err := intc.Lock()
	if err != nil {
		return err
	}
	parse := g.Driver().FdtParseFunc()
	g.Unlock()
	if parse == nil {
		return errcode.New(errcode.IrqParserMissing, "fdt.irq", parent.Path())
	}

	for _, cells := range groups {
		cfg, err := parse(cells)
		if err != nil {
			b.log.Debugf("[%s]: skipping interrupt %v: %v", node.Name(), cells, err)
			continue
		}
		desc.Irqs = append(desc.Irqs, cfg)
	}
	return nil
}

func (b *Backend) resolveClocks(node *dtree.Node, desc *types.Descriptor) error {
	specs, err := node.Clocks()
	if err != nil {
		return err
	}
	for _, s := range specs {
		pid, ok := b.DeviceIDOf(s.Provider)
		if !ok {
			return errcode.New(errcode.MalformedTree, "fdt.clocks", fmt.Sprintf("%s: provider %s has no id", node.Path(), s.Provider.Path()))
		}
		ref := types.ClockRef{Device: pid, Cells: s.Cells, Name: s.Name}
		if len(s.Cells) > 0 {
			ref.ID = types.ClockID(s.Cells[0])
		}
		desc.Clocks = append(desc.Clocks, ref)
	}
	return nil
}
