package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"

	"drivercore-go/drivers/builtin"
	"drivercore-go/drivers/ecam"
	"drivercore-go/drivers/pl011"
	"drivercore-go/dtree"
	"drivercore-go/internal/config"
	"drivercore-go/manager"
)

type inventory struct {
	Devices []deviceEntry `yaml:"devices" json:"devices"`
	Pending []string      `yaml:"pending,omitempty" json:"pending,omitempty"`
	Chosen  *chosenEntry  `yaml:"chosen,omitempty" json:"chosen,omitempty"`
}

type deviceEntry struct {
	ID        string       `yaml:"id" json:"id"`
	Name      string       `yaml:"name" json:"name"`
	Driver    string       `yaml:"driver" json:"driver"`
	IrqParent string       `yaml:"irq_parent,omitempty" json:"irq_parent,omitempty"`
	Irqs      []irqEntry   `yaml:"irqs,omitempty" json:"irqs,omitempty"`
	Clocks    []clockEntry `yaml:"clocks,omitempty" json:"clocks,omitempty"`
}

type irqEntry struct {
	Irq     uint32 `yaml:"irq" json:"irq"`
	Trigger string `yaml:"trigger" json:"trigger"`
}

type clockEntry struct {
	Provider string   `yaml:"provider" json:"provider"`
	Name     string   `yaml:"name,omitempty" json:"name,omitempty"`
	Cells    []uint32 `yaml:"cells,omitempty,flow" json:"cells,omitempty"`
}

type chosenEntry struct {
	Bootargs   []string `yaml:"bootargs,omitempty,flow" json:"bootargs,omitempty"`
	StdoutPath string   `yaml:"stdout_path,omitempty" json:"stdout_path,omitempty"`
}

func options(cfg *config.Config) builtin.Options {
	return builtin.Options{
		Serial: pl011.Options{Baud: cfg.Serial.Baud, RingSize: cfg.Serial.RingSize},
		PCI:    ecam.Options{Functions: cfg.PCI.Functions},
	}
}

// probeTree runs the configured passes and describes what they produced.
// The inventory is filled in even when a pass fails.
func probeTree(tree *dtree.Tree, cfg *config.Config, lf logging.LoggerFactory) (inventory, error) {
	m, err := manager.New(manager.Config{
		Tree:          tree,
		Records:       builtin.Records(options(cfg)),
		DisablePCI:    !cfg.PCI.Enabled,
		LoggerFactory: lf,
	})
	if err != nil {
		return inventory{}, err
	}

	err = m.ProbePreKernel()
	if err == nil && !cfg.PreKernelOnly {
		err = m.ProbeAll(cfg.Strict)
	}
	inv, derr := describe(m)
	return inv, errors.Join(err, derr, m.Close())
}

func describe(m *manager.Manager) (inventory, error) {
	var inv inventory
	for _, id := range m.Registry().IDs() {
		info, err := m.Registry().Describe(id)
		if err != nil {
			return inv, err
		}
		d := info.Descriptor
		e := deviceEntry{ID: d.DeviceID.String(), Name: d.Name, Driver: info.Driver}
		if d.IrqParent != nil {
			e.IrqParent = d.IrqParent.String()
		}
		for _, irq := range d.Irqs {
			e.Irqs = append(e.Irqs, irqEntry{Irq: uint32(irq.Irq), Trigger: irq.Trigger.String()})
		}
		for _, c := range d.Clocks {
			e.Clocks = append(e.Clocks, clockEntry{Provider: c.Device.String(), Name: c.Name, Cells: c.Cells})
		}
		inv.Devices = append(inv.Devices, e)
	}
	for _, p := range m.Pending() {
		inv.Pending = append(inv.Pending, p.Record.Name)
	}
	c, ok, err := m.Tree().Chosen()
	if err != nil {
		return inv, err
	}
	if ok {
		inv.Chosen = &chosenEntry{Bootargs: c.Bootargs, StdoutPath: c.StdoutPath}
	}
	return inv, nil
}

func writeInventory(w io.Writer, format string, inv inventory) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(inv)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(inv); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
