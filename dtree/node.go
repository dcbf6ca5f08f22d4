package dtree

import (
	"encoding/binary"
	"fmt"
	"strings"

	"drivercore-go/errcode"
)

type Node struct {
	tree       *Tree
	name       string
	path       string
	parent     *Node
	children   []*Node
	props      map[string][]byte
	phandle    Phandle
	hasPhandle bool
}

// Status values of the "status" property.
const (
	StatusOkay     = "okay"
	StatusDisabled = "disabled"
)

func (n *Node) Name() string             { return n.name }
func (n *Node) Path() string             { return n.path }
func (n *Node) Parent() *Node            { return n.parent }
func (n *Node) Children() []*Node        { return n.children }
func (n *Node) Tree() *Tree              { return n.tree }
func (n *Node) String() string           { return n.path }
func (n *Node) Phandle() (Phandle, bool) { return n.phandle, n.hasPhandle }

func malformed(n *Node, prop, msg string) error {
	return errcode.New(errcode.MalformedTree, "dtree", fmt.Sprintf("%s: %s: %s", n.path, prop, msg))
}

// Property returns the raw value of a property.
func (n *Node) Property(name string) ([]byte, bool) {
	v, ok := n.props[name]
	return v, ok
}

// HasProperty reports whether the property is present.
func (n *Node) HasProperty(name string) bool {
	_, ok := n.props[name]
	return ok
}

// U32s decodes a property as big-endian cells.
func (n *Node) U32s(name string) ([]uint32, bool, error) {
	v, ok := n.props[name]
	if !ok {
		return nil, false, nil
	}
	if len(v)%4 != 0 {
		return nil, true, malformed(n, name, fmt.Sprintf("length %d is not a multiple of 4", len(v)))
	}
	out := make([]uint32, len(v)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(v[i*4:])
	}
	return out, true, nil
}

// U32 decodes a single-cell property.
func (n *Node) U32(name string) (uint32, bool, error) {
	cells, ok, err := n.U32s(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	if len(cells) != 1 {
		return 0, true, malformed(n, name, fmt.Sprintf("want 1 cell, have %d", len(cells)))
	}
	return cells[0], true, nil
}

// Strings decodes a NUL-separated string list.
func (n *Node) Strings(name string) []string {
	v, ok := n.props[name]
	if !ok || len(v) == 0 {
		return nil
	}
	s := strings.TrimRight(string(v), "\x00")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00")
}

// StringProp returns the first string of a string property.
func (n *Node) StringProp(name string) (string, bool) {
	ss := n.Strings(name)
	if len(ss) == 0 {
		return "", false
	}
	return ss[0], true
}

// Compatibles returns the "compatible" list, most specific first.
func (n *Node) Compatibles() []string { return n.Strings("compatible") }

// IsCompatible reports whether any compatible entry is in want.
func (n *Node) IsCompatible(want []string) bool {
	for _, c := range n.Compatibles() {
		for _, w := range want {
			if c == w {
				return true
			}
		}
	}
	return false
}

// Status returns the "status" property, StatusOkay when absent.
func (n *Node) Status() string {
	if s, ok := n.StringProp("status"); ok {
		return s
	}
	return StatusOkay
}

// Enabled is false only for nodes explicitly marked disabled.
func (n *Node) Enabled() bool { return n.Status() != StatusDisabled }

func (n *Node) readPhandle() (Phandle, bool, error) {
	for _, name := range []string{"phandle", "linux,phandle"} {
		v, ok, err := n.U32(name)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return Phandle(v), true, nil
		}
	}
	return 0, false, nil
}

// cellCount reads a #...-cells property, falling back to def when absent.
func (n *Node) cellCount(name string, def uint32) (uint32, error) {
	v, ok, err := n.U32(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}
