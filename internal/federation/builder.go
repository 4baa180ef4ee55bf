package federation

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yamr/internal/cache"
	"github.com/frederic-klein/yamr/internal/tree"
)

// Builder assembles a federated Root.
type Builder struct {
	root   *Root
	chain  Chain
	logger *log.Logger
	cache  string
}

// NewBuilder starts a federated repository backed by roots, in order, with
// DefaultMergeStrategy installed.
func NewBuilder(roots ...*tree.Node) *Builder {
	b := &Builder{root: NewRoot()}
	for _, n := range roots {
		b.root.AddRoot(n)
	}
	return b
}

// MergeStrategy replaces the merge strategy.
func (b *Builder) MergeStrategy(s tree.MergeStrategy) *Builder {
	b.root.tree.Root().MustAddService(tree.MergeStrategyKind, s)
	return b
}

// ContentTransformer appends t to the transformers applied to every fetched
// artifact, after those of the owning repository.
func (b *Builder) ContentTransformer(t tree.ContentTransformer) *Builder {
	b.chain = append(b.chain, t)
	return b
}

// CacheContent keeps a copy of every fetched artifact below dir.
func (b *Builder) CacheContent(dir string) *Builder {
	b.cache = dir
	return b
}

// AddExternalRoot appends another backing repository root.
func (b *Builder) AddExternalRoot(n *tree.Node) *Builder {
	b.root.AddRoot(n)
	return b
}

// Logger sets the logger used for backend failures.
func (b *Builder) Logger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// Timeout bounds every Fetch. Zero means no timeout.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.root.timeout = d
	return b
}

// Concurrency bounds how many backends are queried at once.
func (b *Builder) Concurrency(n int) *Builder {
	if n > 0 {
		b.root.concurrency = n
	}
	return b
}

// Build returns the configured repository.
func (b *Builder) Build() *Root {
	r := b.root
	if b.logger != nil {
		r.logger = b.logger
	}
	chain := append(Chain(nil), b.chain...)
	if b.cache != "" {
		chain = append(chain, cache.New(b.cache, cache.WithLogger(r.logger)))
	}
	switch len(chain) {
	case 0:
	case 1:
		r.tree.Root().MustAddService(tree.ContentTransformerKind, chain[0])
	default:
		r.tree.Root().MustAddService(tree.ContentTransformerKind, chain)
	}
	return r
}
