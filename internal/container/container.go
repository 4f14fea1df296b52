// Package container models the node hierarchy an instance mounts into its host:
// a root node with a playback sub-container and auxiliary sub-containers.
package container

import (
	"errors"
	"sync"
)

// Well-known child names created for every instance.
const (
	Playback   = "playback"
	Overlay    = "overlay"
	Extensions = "extensions"
)

// Host is the embedding surface that receives the instance root.
type Host interface {
	Attach(root *Node) error
	Detach(root *Node)
}

// Node is one element of the container hierarchy.
type Node struct {
	mu       sync.Mutex
	name     string
	parent   *Node
	children []*Node
	attrs    map[string]string
}

// New returns a detached node.
func New(name string) *Node {
	return &Node{name: name, attrs: map[string]string{}}
}

// NewTree allocates the root node and its standard sub-containers.
func NewTree(rootName string) *Node {
	root := New(rootName)
	for _, name := range []string{Playback, Overlay, Extensions} {
		root.Append(New(name))
	}
	return root
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Parent returns the parent node or nil.
func (n *Node) Parent() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

// Append adds child to n, detaching it from any previous parent, and returns child.
func (n *Node) Append(child *Node) *Node {
	if child == nil || child == n {
		return child
	}
	if prev := child.Parent(); prev != nil {
		prev.Remove(child)
	}
	n.mu.Lock()
	n.children = append(n.children, child)
	n.mu.Unlock()
	child.mu.Lock()
	child.parent = n
	child.mu.Unlock()
	return child
}

// Remove detaches child from n.
func (n *Node) Remove(child *Node) bool {
	n.mu.Lock()
	removed := false
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			removed = true
			break
		}
	}
	n.mu.Unlock()
	if removed {
		child.mu.Lock()
		child.parent = nil
		child.mu.Unlock()
	}
	return removed
}

// Child returns the first direct child with the given name.
func (n *Node) Child(name string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Children returns a copy of the direct children.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.children...)
}

// Set stores an attribute on the node.
func (n *Node) Set(key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attrs[key] = value
}

// Attr reads an attribute.
func (n *Node) Attr(key string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.attrs[key]
	return v, ok
}

// Clear removes the whole subtree below n.
func (n *Node) Clear() {
	for _, c := range n.Children() {
		c.Clear()
		n.Remove(c)
	}
}

// ErrAlreadyAttached is returned by MemoryHost when a root is attached twice.
var ErrAlreadyAttached = errors.New("container already attached")

// MemoryHost keeps attached roots in memory. It is used by the daemon and tests.
type MemoryHost struct {
	mu    sync.Mutex
	roots []*Node
}

// Attach implements Host.
func (h *MemoryHost) Attach(root *Node) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.roots {
		if r == root {
			return ErrAlreadyAttached
		}
	}
	h.roots = append(h.roots, root)
	return nil
}

// Detach implements Host.
func (h *MemoryHost) Detach(root *Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.roots {
		if r == root {
			h.roots = append(h.roots[:i:i], h.roots[i+1:]...)
			return
		}
	}
}

// Roots returns the attached roots.
func (h *MemoryHost) Roots() []*Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Node(nil), h.roots...)
}
