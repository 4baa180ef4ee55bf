// Package tree holds the addressable node structure repositories are made of
// and the capabilities a node can carry.
package tree

import (
	"sort"
	"strings"
	"sync"
)

// Path is an ordered sequence of name segments from a root.
type Path []string

// ParsePath splits a slash-separated path, ignoring empty segments.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Append returns a new path with name added.
func (p Path) Append(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// ID addresses a node inside its tree.
type ID int

// RootID is the ID of every tree's root node.
const RootID ID = 0

type edge struct {
	parent ID
	name   string
}

// Tree is an arena of nodes. The tree owns every node; nodes refer to each
// other only by ID.
type Tree struct {
	mu       sync.RWMutex
	nodes    []*Node
	children map[edge]ID
}

// New creates a tree whose root node carries label.
func New(label string) *Tree {
	t := &Tree{children: make(map[edge]ID)}
	root := newNode(t, RootID, RootID, "", nil)
	root.label = label
	t.nodes = append(t.nodes, root)
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[RootID]
}

// Node returns the node with the given ID.
func (t *Tree) Node(id ID) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || int(id) >= len(t.nodes) || t.nodes[id] == nil {
		return nil, false
	}
	return t.nodes[id], true
}

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, node := range t.nodes {
		if node != nil {
			n++
		}
	}
	return n
}

// Walk materializes every segment of p and returns the last node.
func (t *Tree) Walk(p Path) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := RootID
	for _, seg := range p {
		id = t.childLocked(id, seg).id
	}
	return t.nodes[id]
}

// Find returns the node at p without materializing anything.
func (t *Tree) Find(p Path) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id := RootID
	for _, seg := range p {
		next, ok := t.children[edge{id, seg}]
		if !ok {
			return nil, false
		}
		id = next
	}
	return t.nodes[id], true
}

// Remove deletes the node at p and its whole subtree. The root cannot be removed.
func (t *Tree) Remove(p Path) bool {
	if len(p) == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := RootID
	for _, seg := range p {
		next, ok := t.children[edge{id, seg}]
		if !ok {
			return false
		}
		id = next
	}
	t.removeLocked(id)
	return true
}

func (t *Tree) removeLocked(id ID) {
	n := t.nodes[id]
	var kids []ID
	for e, child := range t.children {
		if e.parent == id {
			kids = append(kids, child)
		}
	}
	for _, child := range kids {
		t.removeLocked(child)
	}
	delete(t.children, edge{n.parent, n.name})
	t.nodes[id] = nil
}

// child returns the named child of parent, creating it on first access.
// Concurrent callers always observe the same node.
func (t *Tree) child(parent ID, name string) (*Node, error) {
	t.mu.RLock()
	id, ok := t.children[edge{parent, name}]
	if ok {
		n := t.nodes[id]
		t.mu.RUnlock()
		return n, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nodes[parent] == nil {
		return nil, ErrRemoved
	}
	return t.childLocked(parent, name), nil
}

// childLocked requires t.mu held for writing and parent to be live.
func (t *Tree) childLocked(parent ID, name string) *Node {
	if id, ok := t.children[edge{parent, name}]; ok {
		return t.nodes[id]
	}
	p := t.nodes[parent]
	id := ID(len(t.nodes))
	n := newNode(t, id, parent, name, p.path.Append(name))
	t.nodes = append(t.nodes, n)
	t.children[edge{parent, name}] = id
	return n
}

func (t *Tree) lookup(parent ID, name string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.children[edge{parent, name}]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

func (t *Tree) childrenOf(parent ID) []*Node {
	t.mu.RLock()
	var out []*Node
	for e, id := range t.children {
		if e.parent == parent {
			out = append(out, t.nodes[id])
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
