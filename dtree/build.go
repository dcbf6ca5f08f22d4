package dtree

import (
	"encoding/binary"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

// Helpers for assembling node hierarchies in code, e.g. for boards
// without a blob and for tests.

// NewNode returns a node with the given properties and children.
func NewNode(name string, props []dt.Property, children ...*dt.Node) *dt.Node {
	return &dt.Node{Name: name, Properties: props, Children: children}
}

// Cells encodes a big-endian cell property.
func Cells(name string, v ...uint32) dt.Property {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(b[i*4:], x)
	}
	return dt.Property{Name: name, Value: b}
}

// Str encodes a NUL-terminated string list property.
func Str(name string, v ...string) dt.Property {
	return dt.Property{Name: name, Value: []byte(strings.Join(v, "\x00") + "\x00")}
}

// Flag encodes an empty property.
func Flag(name string) dt.Property {
	return dt.Property{Name: name}
}

// Props collects properties for NewNode.
func Props(p ...dt.Property) []dt.Property { return p }
