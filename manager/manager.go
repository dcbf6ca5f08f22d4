// Package manager is the context drivers are probed into and looked up
// from. A Manager owns one registry, one record table and the enumeration
// backends; nothing in the core is process-global except the id counters
// and the list of built-in records.
package manager

import (
	"github.com/pion/logging"

	"drivercore-go/bus"
	"drivercore-go/device"
	"drivercore-go/dtree"
	"drivercore-go/errcode"
	ilog "drivercore-go/internal/logging"
	"drivercore-go/probe"
	"drivercore-go/probe/fdt"
	"drivercore-go/probe/pci"
	"drivercore-go/register"
	"drivercore-go/types"
)

type Config struct {
	// Tree is the hardware description. Required.
	Tree *dtree.Tree
	// Records replaces the built-in records (register.Declared) when
	// non-nil. An empty, non-nil slice starts with no records.
	Records []register.Record
	// DisablePCI skips the PCI pass of ProbeAll.
	DisablePCI bool
	// LoggerFactory is optional; nil disables logging.
	LoggerFactory logging.LoggerFactory
	// Bus, when set, receives a retained Event on device/<id> for every
	// device a pass produces and again when it is released.
	Bus *bus.Bus
}

// TopicDevice is the first token of device event topics.
const TopicDevice = "device"

type State string

const (
	StateProbed   State = "probed"
	StateReleased State = "released"
)

// Event describes a device lifecycle change.
type Event struct {
	ID     types.DeviceID
	Name   string
	Driver string
	State  State
}

// DeviceTopic returns the topic events about id are published on.
func DeviceTopic(id types.DeviceID) bus.Topic { return bus.T(TopicDevice, id.String()) }

type Manager struct {
	tree   *dtree.Tree
	reg    *device.Registry
	table  *register.Table
	engine *probe.Engine
	fdt    *fdt.Backend
	pci    *pci.Backend
	log    logging.LeveledLogger

	bus       *bus.Bus
	announced []Event
	seen      map[types.DeviceID]bool
}

func New(cfg Config) (*Manager, error) {
	if cfg.Tree == nil {
		return nil, errcode.New(errcode.InvalidParams, "manager.new", "no device tree")
	}
	m := &Manager{
		tree:  cfg.Tree,
		reg:   device.NewRegistry(),
		table: register.NewTable(),
		log:   ilog.Scope(cfg.LoggerFactory, "manager"),
		bus:   cfg.Bus,
		seen:  map[types.DeviceID]bool{},
	}
	fb, err := fdt.New(fdt.Config{Tree: cfg.Tree, Registry: m.reg, LoggerFactory: cfg.LoggerFactory})
	if err != nil {
		return nil, err
	}
	m.fdt = fb
	if !cfg.DisablePCI {
		if m.pci, err = pci.New(pci.Config{Registry: m.reg, LoggerFactory: cfg.LoggerFactory}); err != nil {
			return nil, err
		}
	}
	m.engine = probe.NewEngine(m.reg, m.table, cfg.LoggerFactory)

	recs := cfg.Records
	if recs == nil {
		recs = register.Declared()
	}
	m.table.Append(recs...)
	m.log.Debugf("manager ready with %d records", len(recs))
	return m, nil
}

// Register adds a record to be considered by later passes.
func (m *Manager) Register(r register.Record) types.RegisterID { return m.table.Add(r) }

// Append adds several records.
func (m *Manager) Append(rs ...register.Record) []types.RegisterID {
	return m.table.Append(rs...)
}

// ProbePreKernel probes the pre-kernel records against the device tree.
// It always stops at the first hard failure.
func (m *Manager) ProbePreKernel() error {
	entries := m.table.PendingAt(register.PreKernel)
	m.log.Debugf("pre-kernel pass over %d records", len(entries))
	defer m.announce()
	return m.engine.Run(m.fdt, entries, true)
}

// ProbeAll probes every pending record against the device tree and then
// against PCI. With strict unset, failing records are logged and skipped.
func (m *Manager) ProbeAll(strict bool) error {
	entries := m.table.Pending()
	m.log.Debugf("full pass over %d records", len(entries))
	defer m.announce()
	if err := m.engine.Run(m.fdt, entries, strict); err != nil {
		return err
	}
	if m.pci == nil {
		return nil
	}
	m.log.Debug("probe pci devices")
	return m.pci.Probe(m.engine, entries, strict)
}

// Pending returns the records no pass has consumed yet.
func (m *Manager) Pending() []register.Entry { return m.table.Pending() }

// Registry returns the device registry, for device.Get and friends.
func (m *Manager) Registry() *device.Registry { return m.reg }

// Tree returns the hardware description.
func (m *Manager) Tree() *dtree.Tree { return m.tree }

// DeviceIDOf returns the id a tree node was assigned.
func (m *Manager) DeviceIDOf(n *dtree.Node) (types.DeviceID, bool) { return m.fdt.DeviceIDOf(n) }

// Close releases every device, newest first, and closes each driver.
// Handles issued earlier report device_released afterwards.
func (m *Manager) Close() error {
	m.log.Debugf("releasing %d devices", m.reg.Len())
	err := m.reg.ReleaseAll()
	if m.bus != nil {
		for _, ev := range m.announced {
			ev.State = StateReleased
			m.bus.Publish(&bus.Message{Topic: DeviceTopic(ev.ID), Payload: ev, Retained: true})
		}
	}
	m.announced = nil
	return err
}

// announce publishes the devices added since the last pass.
func (m *Manager) announce() {
	if m.bus == nil {
		return
	}
	for _, id := range m.reg.IDs() {
		if m.seen[id] {
			continue
		}
		info, err := m.reg.Describe(id)
		if err != nil {
			continue
		}
		m.seen[id] = true
		ev := Event{ID: id, Name: info.Descriptor.Name, Driver: info.Driver, State: StateProbed}
		m.announced = append(m.announced, ev)
		m.bus.Publish(&bus.Message{Topic: DeviceTopic(id), Payload: ev, Retained: true})
	}
}

// Get returns a handle to device id typed at T.
func Get[T any](m *Manager, id types.DeviceID) (device.Device[T], error) {
	return device.Get[T](m.reg, id)
}

// GetOne returns the first device of type T.
func GetOne[T any](m *Manager) (device.Device[T], bool) { return device.GetOne[T](m.reg) }

// GetList returns every device of type T in registration order.
func GetList[T any](m *Manager) []device.Device[T] { return device.GetList[T](m.reg) }
