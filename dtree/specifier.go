package dtree

import (
	"fmt"

	"github.com/google/shlex"
)

// InterruptParent returns the node named by the closest "interrupt-parent"
// property on n or its ancestors. A dangling phandle resolves to nothing.
func (n *Node) InterruptParent() (*Node, bool) {
	for cur := n; cur != nil; cur = cur.parent {
		ph, ok, err := cur.U32("interrupt-parent")
		if err != nil || !ok {
			continue
		}
		p, ok := n.tree.ByPhandle(Phandle(ph))
		return p, ok
	}
	return nil, false
}

// Interrupts splits the "interrupts" property into specifiers sized by the
// interrupt parent's #interrupt-cells. It returns nil when the node has no
// interrupts or no interrupt parent.
func (n *Node) Interrupts() ([][]uint32, error) {
	cells, ok, err := n.U32s("interrupts")
	if err != nil || !ok || len(cells) == 0 {
		return nil, err
	}
	parent, ok := n.InterruptParent()
	if !ok {
		return nil, nil
	}
	size, err := parent.cellCount("#interrupt-cells", 1)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, malformed(parent, "#interrupt-cells", "zero")
	}
	return group(n, "interrupts", cells, int(size))
}

func group(n *Node, prop string, cells []uint32, size int) ([][]uint32, error) {
	if len(cells)%size != 0 {
		return nil, malformed(n, prop, fmt.Sprintf("%d cells do not split into groups of %d", len(cells), size))
	}
	out := make([][]uint32, 0, len(cells)/size)
	for i := 0; i < len(cells); i += size {
		out = append(out, cells[i:i+size])
	}
	return out, nil
}

// ClockSpec is one entry of a "clocks" property.
type ClockSpec struct {
	Provider *Node
	Cells    []uint32
	Name     string // from "clock-names", "" when absent
}

// Clocks decodes the "clocks" property using each provider's #clock-cells.
func (n *Node) Clocks() ([]ClockSpec, error) {
	cells, ok, err := n.U32s("clocks")
	if err != nil || !ok {
		return nil, err
	}
	names := n.Strings("clock-names")

	var out []ClockSpec
	for i := 0; i < len(cells); {
		prov, ok := n.tree.ByPhandle(Phandle(cells[i]))
		if !ok {
			return nil, malformed(n, "clocks", fmt.Sprintf("unknown phandle %d", cells[i]))
		}
		size, err := prov.cellCount("#clock-cells", 0)
		if err != nil {
			return nil, err
		}
		end := i + 1 + int(size)
		if end > len(cells) {
			return nil, malformed(n, "clocks", "truncated specifier")
		}
		spec := ClockSpec{Provider: prov, Cells: append([]uint32(nil), cells[i+1:end]...)}
		if idx := len(out); idx < len(names) {
			spec.Name = names[idx]
		}
		out = append(out, spec)
		i = end
	}
	return out, nil
}

// Region is one decoded "reg" entry.
type Region struct {
	Address uint64
	Size    uint64
}

// Reg decodes "reg" using the parent's #address-cells and #size-cells.
func (n *Node) Reg() ([]Region, error) {
	cells, ok, err := n.U32s("reg")
	if err != nil || !ok {
		return nil, err
	}
	ac, sc := uint32(2), uint32(1)
	if p := n.parent; p != nil {
		if ac, err = p.cellCount("#address-cells", 2); err != nil {
			return nil, err
		}
		if sc, err = p.cellCount("#size-cells", 1); err != nil {
			return nil, err
		}
	}
	if ac == 0 || ac > 2 || sc > 2 {
		return nil, malformed(n, "reg", fmt.Sprintf("unsupported cell sizes %d/%d", ac, sc))
	}
	groups, err := group(n, "reg", cells, int(ac+sc))
	if err != nil {
		return nil, err
	}
	out := make([]Region, len(groups))
	for i, g := range groups {
		out[i] = Region{Address: joinCells(g[:ac]), Size: joinCells(g[ac:])}
	}
	return out, nil
}

func joinCells(c []uint32) uint64 {
	var v uint64
	for _, x := range c {
		v = v<<32 | uint64(x)
	}
	return v
}

// Chosen holds the firmware-to-OS parameters of the /chosen node.
type Chosen struct {
	Bootargs   []string
	StdoutPath string
}

// Chosen decodes /chosen. Bootargs are split with shell quoting rules.
func (t *Tree) Chosen() (Chosen, bool, error) {
	n, ok := t.Find("/chosen")
	if !ok {
		return Chosen{}, false, nil
	}
	var c Chosen
	if s, ok := n.StringProp("bootargs"); ok {
		args, err := shlex.Split(s)
		if err != nil {
			return Chosen{}, true, malformed(n, "bootargs", err.Error())
		}
		c.Bootargs = args
	}
	c.StdoutPath, _ = n.StringProp("stdout-path")
	return c, true, nil
}
