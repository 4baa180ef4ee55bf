package tree

import (
	"fmt"
	"sync"
)

// Node is one addressable element of a tree: a directory, module, version or
// artifact. Its path never changes once created.
type Node struct {
	tree   *Tree
	id     ID
	parent ID
	name   string
	path   Path

	mu       sync.RWMutex
	label    string
	services map[Kind]any
}

func newNode(t *Tree, id, parent ID, name string, path Path) *Node {
	return &Node{
		tree:     t,
		id:       id,
		parent:   parent,
		name:     name,
		path:     path,
		services: make(map[Kind]any),
	}
}

// ID returns the node's address in its tree.
func (n *Node) ID() ID { return n.id }

// Name returns the last path segment; the root's is empty.
func (n *Node) Name() string { return n.name }

// Path returns a copy of the node's path.
func (n *Node) Path() Path {
	return append(Path{}, n.path...)
}

// IsRoot reports whether n is its tree's root.
func (n *Node) IsRoot() bool { return n.id == RootID }

// Parent returns the parent node; the root has none.
func (n *Node) Parent() (*Node, bool) {
	if n.IsRoot() {
		return nil, false
	}
	return n.tree.Node(n.parent)
}

// Child returns the named child, materializing it on first access. It fails
// with ErrRemoved once n has been removed from its tree.
func (n *Node) Child(name string) (*Node, error) {
	return n.tree.child(n.id, name)
}

// Lookup returns the named child if it has been materialized.
func (n *Node) Lookup(name string) (*Node, bool) {
	return n.tree.lookup(n.id, name)
}

// Children returns the materialized children ordered by name.
func (n *Node) Children() []*Node {
	return n.tree.childrenOf(n.id)
}

// Label returns the human readable display label.
func (n *Node) Label() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.label == "" {
		return "/" + n.path.String()
	}
	return n.label
}

// SetLabel sets the display label.
func (n *Node) SetLabel(label string) {
	n.mu.Lock()
	n.label = label
	n.mu.Unlock()
}

func (n *Node) String() string { return n.Label() }

// AddService registers impl as the node's capability of the given kind,
// replacing any previous one. impl must implement the kind's interface.
func (n *Node) AddService(kind Kind, impl any) error {
	if impl == nil || !kind.accepts(impl) {
		return fmt.Errorf("%w: %T is not a %s", ErrCapabilityMismatch, impl, kind)
	}
	n.mu.Lock()
	n.services[kind] = impl
	n.mu.Unlock()
	return nil
}

// MustAddService is AddService for registrations that cannot fail.
func (n *Node) MustAddService(kind Kind, impl any) {
	if err := n.AddService(kind, impl); err != nil {
		panic(err)
	}
}

// RemoveService drops the node's capability of the given kind.
func (n *Node) RemoveService(kind Kind) {
	n.mu.Lock()
	delete(n.services, kind)
	n.mu.Unlock()
}

// Service returns the node's own capability of the given kind. Ancestors are
// never consulted.
func (n *Node) Service(kind Kind) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.services[kind]
	return s, ok
}

// ServiceOf returns the node's capability of the given kind as T.
func ServiceOf[T any](n *Node, kind Kind) (T, bool) {
	var zero T
	s, ok := n.Service(kind)
	if !ok {
		return zero, false
	}
	t, ok := s.(T)
	return t, ok
}

// Finder returns the node's ContentFinder.
func (n *Node) Finder() (ContentFinder, bool) {
	return ServiceOf[ContentFinder](n, ContentFinderKind)
}

// Transformer returns the node's ContentTransformer.
func (n *Node) Transformer() (ContentTransformer, bool) {
	return ServiceOf[ContentTransformer](n, ContentTransformerKind)
}

// MergeStrategy returns the node's MergeStrategy.
func (n *Node) MergeStrategy() (MergeStrategy, bool) {
	return ServiceOf[MergeStrategy](n, MergeStrategyKind)
}

// Store returns the node's ContentStore.
func (n *Node) Store() (ContentStore, bool) {
	return ServiceOf[ContentStore](n, ContentStoreKind)
}
