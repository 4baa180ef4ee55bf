package tree

import (
	"context"
	"errors"
	"io"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
)

var (
	// ErrNotFound is returned by stores that do not hold a requested artifact.
	ErrNotFound = errors.New("not found")
	// ErrCapabilityMismatch is returned when a service does not implement its kind.
	ErrCapabilityMismatch = errors.New("capability mismatch")
	// ErrRemoved is returned when creating a child under a removed node.
	ErrRemoved = errors.New("node removed")
)

// Kind identifies a capability a node may carry.
type Kind int

const (
	ContentFinderKind Kind = iota + 1
	ContentTransformerKind
	MergeStrategyKind
	ContentStoreKind
)

func (k Kind) String() string {
	switch k {
	case ContentFinderKind:
		return "content finder"
	case ContentTransformerKind:
		return "content transformer"
	case MergeStrategyKind:
		return "merge strategy"
	case ContentStoreKind:
		return "content store"
	}
	return "unknown capability"
}

func (k Kind) accepts(impl any) bool {
	var ok bool
	switch k {
	case ContentFinderKind:
		_, ok = impl.(ContentFinder)
	case ContentTransformerKind:
		_, ok = impl.(ContentTransformer)
	case MergeStrategyKind:
		_, ok = impl.(MergeStrategy)
	case ContentStoreKind:
		_, ok = impl.(ContentStore)
	}
	return ok
}

// ContentFinder answers module queries over a backend's content.
// Queries for a platform the backend does not serve must return without
// touching the result.
type ContentFinder interface {
	CompleteModules(ctx context.Context, q query.ModuleQuery, r *query.SearchResult) error
	CompleteVersions(ctx context.Context, q query.VersionQuery, r *query.VersionResult) error
	SearchModules(ctx context.Context, q query.ModuleQuery, r *query.SearchResult) error
}

// ContentTransformer intercepts artifact retrieval. It returns a stream with
// the same logical content and may perform side effects such as caching.
type ContentTransformer interface {
	Transform(ctx context.Context, ref dist.ArtifactRef, rc io.ReadCloser) (io.ReadCloser, error)
}

// EntryKind describes what a store holds at a path.
type EntryKind int

const (
	Missing EntryKind = iota
	Directory
	Leaf
)

func (k EntryKind) String() string {
	switch k {
	case Directory:
		return "directory"
	case Leaf:
		return "leaf"
	}
	return "missing"
}

// ContentStore is the raw content behind a backing root.
type ContentStore interface {
	Stat(ctx context.Context, p Path) (EntryKind, error)
	Open(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error)
}

// Candidate is one backing root that holds an entry at a merged path.
type Candidate struct {
	Root  *Node
	Index int // registration order
	Kind  EntryKind
}

// MergeStrategy decides how backing roots that expose the same path are
// combined into one logical entry.
type MergeStrategy interface {
	// Select picks the owner of p among the candidates, in registration order.
	Select(p Path, candidates []Candidate) (Candidate, error)
	// Attach installs services on the merged node owned by selected.
	Attach(merged *Node, selected Candidate, federated *Node)
	// MergeModule combines two results for the same module; existing came first.
	MergeModule(existing, incoming dist.ModuleDetails) dist.ModuleDetails
	// MergeVersion combines two results for the same version; existing came first.
	MergeVersion(existing, incoming dist.VersionDetails) dist.VersionDetails
}
