// Package register declares driver candidates and tracks which of them
// have already produced a device.
package register

import (
	"fmt"
	"sort"
	"sync"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/dtree"
	"drivercore-go/pcie"
	"drivercore-go/types"
)

// ProbeLevel is the coarse phase gate of a record.
type ProbeLevel uint8

const (
	// PreKernel records are needed before the rest of system init.
	PreKernel ProbeLevel = iota
	PostKernel
)

func (l ProbeLevel) String() string {
	if l == PreKernel {
		return "pre_kernel"
	}
	return "post_kernel"
}

// Priority orders records within a pass; lower probes first.
type Priority int

const (
	PriorityIntc    Priority = 0
	PriorityClk     Priority = 1
	PriorityDefault Priority = 256
)

// FdtProbeFunc constructs a driver for a matched node. It either returns
// the instance or registers it through dev and returns nil; both have the
// same effect. Returning an error that carries errcode.NotMatch declines
// the node.
type FdtProbeFunc func(info FdtInfo, dev *device.PlatformDevice) (driver.Driver, error)

// PciProbeFunc is FdtProbeFunc for a PCI endpoint.
type PciProbeFunc func(ep *pcie.Endpoint, dev *device.PlatformDevice) (driver.Driver, error)

// ProbeKind is one match rule: Fdt or Pci.
type ProbeKind interface{ probeKind() }

type Fdt struct {
	Compatibles []string
	OnProbe     FdtProbeFunc
}

type Pci struct {
	OnProbe PciProbeFunc
}

func (Fdt) probeKind() {}
func (Pci) probeKind() {}

// Record is one statically declared driver candidate.
type Record struct {
	Name       string
	Level      ProbeLevel
	Priority   Priority
	ProbeKinds []ProbeKind
}

// FdtInfo is what an FDT constructor sees of its node.
type FdtInfo struct {
	Node     *dtree.Node
	phandles map[dtree.Phandle]types.DeviceID
	probed   func(*dtree.Node) (types.DeviceID, bool)
}

// NewFdtInfo binds node to a snapshot of the phandle table. probed, if
// not nil, resolves nodes without a phandle that already produced a
// device.
func NewFdtInfo(node *dtree.Node, phandles map[dtree.Phandle]types.DeviceID, probed func(*dtree.Node) (types.DeviceID, bool)) FdtInfo {
	return FdtInfo{Node: node, phandles: phandles, probed: probed}
}

// PhandleToDeviceID returns the identity pre-assigned to a phandle.
func (i FdtInfo) PhandleToDeviceID(ph dtree.Phandle) (types.DeviceID, bool) {
	id, ok := i.phandles[ph]
	return id, ok
}

// DeviceIDOf returns the identity of n: pre-assigned for phandle-bearing
// nodes, otherwise the one it was probed under.
func (i FdtInfo) DeviceIDOf(n *dtree.Node) (types.DeviceID, bool) {
	if n == nil {
		return 0, false
	}
	if ph, ok := n.Phandle(); ok {
		return i.PhandleToDeviceID(ph)
	}
	if i.probed == nil {
		return 0, false
	}
	return i.probed(n)
}

// ---- Table ----

type Entry struct {
	ID     types.RegisterID
	Record Record
}

// Table holds declared records. It is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	entries []Entry
	probed  map[types.RegisterID]struct{}
}

func NewTable() *Table {
	return &Table{probed: map[types.RegisterID]struct{}{}}
}

// Add inserts r under a fresh id.
func (t *Table) Add(r Record) types.RegisterID {
	id := types.NewRegisterID()
	t.mu.Lock()
	t.entries = append(t.entries, Entry{ID: id, Record: r})
	t.mu.Unlock()
	return id
}

// Append adds every record in order.
func (t *Table) Append(rs ...Record) []types.RegisterID {
	ids := make([]types.RegisterID, len(rs))
	for i, r := range rs {
		ids[i] = t.Add(r)
	}
	return ids
}

// MarkProbed flags id as consumed. Repeated calls are harmless.
func (t *Table) MarkProbed(id types.RegisterID) {
	t.mu.Lock()
	t.probed[id] = struct{}{}
	t.mu.Unlock()
}

func (t *Table) IsProbed(id types.RegisterID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.probed[id]
	return ok
}

// Len returns the number of records, probed or not.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending returns unconsumed records by ascending priority; ties keep
// insertion order.
func (t *Table) Pending() []Entry {
	return t.pending(func(Record) bool { return true })
}

// PendingAt is Pending restricted to one probe level.
func (t *Table) PendingAt(level ProbeLevel) []Entry {
	return t.pending(func(r Record) bool { return r.Level == level })
}

func (t *Table) pending(keep func(Record) bool) []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if _, done := t.probed[e.ID]; done || !keep(e.Record) {
			continue
		}
		out = append(out, e)
	}
	t.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.Priority < out[j].Record.Priority
	})
	return out
}

// ---- Static declarations ----

var (
	declMu   sync.RWMutex
	declared []Record
	declName = map[string]struct{}{}
)

// Declare adds r to the process-wide list of built-in drivers. Driver
// packages call it from init; a manager copies the list into its own
// table when it is created. Names must be unique.
func Declare(r Record) {
	declMu.Lock()
	defer declMu.Unlock()
	if _, exists := declName[r.Name]; exists {
		panic(fmt.Sprintf("driver record already declared: %q", r.Name))
	}
	declName[r.Name] = struct{}{}
	declared = append(declared, r)
}

// Declared returns a copy of the built-in records in declaration order.
func Declared() []Record {
	declMu.RLock()
	defer declMu.RUnlock()
	return append([]Record(nil), declared...)
}
