// Package dtree is a walkable, read-only view of a flattened device tree.
//
// Blobs are decoded by github.com/u-root/u-root/pkg/dt; this package adds
// parent links, phandle lookup and the typed property accessors the probe
// backend needs (compatible lists, interrupt and clock specifiers, reg).
package dtree

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/u-root/u-root/pkg/dt"

	"drivercore-go/errcode"
)

// Phandle is the small integer a node carries so others can reference it.
type Phandle uint32

type Tree struct {
	root      *Node
	all       []*Node // pre-order
	byPhandle map[Phandle]*Node
	byPath    map[string]*Node
}

// Parse decodes a flattened device tree blob.
func Parse(r io.ReadSeeker) (*Tree, error) {
	fdt, err := dt.ReadFDT(r)
	if err != nil {
		return nil, errcode.Wrap(errcode.MalformedTree, "dtree.parse", err)
	}
	return FromRoot(fdt.RootNode)
}

// ParseBytes is Parse over an in-memory blob.
func ParseBytes(blob []byte) (*Tree, error) {
	return Parse(bytes.NewReader(blob))
}

// FromRoot builds a Tree over an already decoded node hierarchy.
func FromRoot(root *dt.Node) (*Tree, error) {
	if root == nil {
		return nil, errcode.New(errcode.MalformedTree, "dtree.build", "no root node")
	}
	t := &Tree{
		byPhandle: map[Phandle]*Node{},
		byPath:    map[string]*Node{},
	}
	t.root = t.build(root, nil)
	for _, n := range t.all {
		ph, ok, err := n.readPhandle()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev, dup := t.byPhandle[ph]; dup {
			return nil, errcode.New(errcode.MalformedTree, "dtree.build",
				fmt.Sprintf("phandle %d on both %s and %s", ph, prev.Path(), n.Path()))
		}
		n.phandle, n.hasPhandle = ph, true
		t.byPhandle[ph] = n
	}
	return t, nil
}

func (t *Tree) build(raw *dt.Node, parent *Node) *Node {
	n := &Node{
		tree:   t,
		name:   raw.Name,
		parent: parent,
		props:  make(map[string][]byte, len(raw.Properties)),
	}
	for _, p := range raw.Properties {
		n.props[p.Name] = p.Value
	}
	n.path = joinPath(parent, raw.Name)
	t.all = append(t.all, n)
	t.byPath[n.path] = n
	for _, c := range raw.Children {
		n.children = append(n.children, t.build(c, n))
	}
	return n
}

func joinPath(parent *Node, name string) string {
	if parent == nil {
		return "/"
	}
	if parent.parent == nil {
		return "/" + name
	}
	return parent.path + "/" + name
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Nodes returns every node in pre-order.
func (t *Tree) Nodes() []*Node { return t.all }

// ByPhandle resolves a phandle.
func (t *Tree) ByPhandle(ph Phandle) (*Node, bool) {
	n, ok := t.byPhandle[ph]
	return n, ok
}

// Phandles returns every phandle-bearing node keyed by its phandle.
func (t *Tree) Phandles() map[Phandle]*Node {
	out := make(map[Phandle]*Node, len(t.byPhandle))
	for k, v := range t.byPhandle {
		out[k] = v
	}
	return out
}

// Find returns the node at an absolute path such as "/soc/uart@9000000".
func (t *Tree) Find(path string) (*Node, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	n, ok := t.byPath[path]
	return n, ok
}
