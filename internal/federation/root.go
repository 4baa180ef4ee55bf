// Package federation combines several backing repositories into one logical
// repository.
package federation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
)

// DefaultConcurrency bounds how many backing repositories are queried at once.
const DefaultConcurrency = 8

// Root is a federated repository. Its root node carries the Root itself as
// content finder and store, so a Root can back another Root.
type Root struct {
	tree        *tree.Tree
	logger      *log.Logger
	timeout     time.Duration
	concurrency int

	mu    sync.RWMutex
	roots []*tree.Node
}

// NewRoot returns an empty federated repository using DefaultMergeStrategy.
// Use Builder for anything beyond tests.
func NewRoot() *Root {
	r := &Root{
		tree:        tree.New("federated repository"),
		logger:      log.Default(),
		concurrency: DefaultConcurrency,
	}
	n := r.tree.Root()
	n.MustAddService(tree.ContentFinderKind, r)
	n.MustAddService(tree.ContentStoreKind, r)
	n.MustAddService(tree.MergeStrategyKind, DefaultMergeStrategy{})
	return r
}

// Node returns the federated root node.
func (r *Root) Node() *tree.Node { return r.tree.Root() }

// Tree returns the tree holding merged nodes.
func (r *Root) Tree() *tree.Tree { return r.tree }

// AddRoot appends a backing repository root. Earlier roots take precedence.
func (r *Root) AddRoot(n *tree.Node) {
	r.mu.Lock()
	r.roots = append(r.roots, n)
	r.mu.Unlock()
}

// Roots returns the backing roots in registration order.
func (r *Root) Roots() []*tree.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*tree.Node(nil), r.roots...)
}

// MergeStrategy returns the strategy registered on the federated root.
func (r *Root) MergeStrategy() tree.MergeStrategy {
	if s, ok := r.tree.Root().MergeStrategy(); ok {
		return s
	}
	return DefaultMergeStrategy{}
}

// eachFinder calls fn concurrently for every backing root that has a
// finder. Backend errors and panics are logged and skipped; only
// cancellation of ctx is returned.
func (r *Root) eachFinder(ctx context.Context, op string, roots []*tree.Node, fn func(ctx context.Context, i int, f tree.ContentFinder) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, n := range roots {
		f, ok := n.Finder()
		if !ok {
			continue
		}
		g.Go(func() error {
			return r.callBackend(gctx, op, n, func(ctx context.Context) error {
				return fn(ctx, i, f)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Root) callBackend(ctx context.Context, op string, n *tree.Node, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.backendFailed(op, n, fmt.Errorf("panic: %v", p))
			err = nil
		}
	}()
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.backendFailed(op, n, err)
	}
	return nil
}

func (r *Root) backendFailed(op string, n *tree.Node, err error) {
	yamrBackendErrorsTotal.WithLabelValues(op).Inc()
	r.logger.Warn("backend failed", "backend", n.Label(), "op", op, "error", err)
}

// CompleteModules returns the union of every backend's completions.
func (r *Root) CompleteModules(ctx context.Context, q query.ModuleQuery, res *query.SearchResult) error {
	yamrQueriesTotal.WithLabelValues("complete_modules").Inc()
	roots := r.Roots()
	locals := newSearchResults(len(roots))
	err := r.eachFinder(ctx, "complete_modules", roots, func(ctx context.Context, i int, f tree.ContentFinder) error {
		return f.CompleteModules(ctx, q, locals[i])
	})
	if err != nil {
		return err
	}
	r.mergeModules(res, locals, nil)
	return nil
}

// CompleteVersions returns the union of every backend's versions of a module.
func (r *Root) CompleteVersions(ctx context.Context, q query.VersionQuery, res *query.VersionResult) error {
	yamrQueriesTotal.WithLabelValues("complete_versions").Inc()
	roots := r.Roots()
	locals := make([]*query.VersionResult, len(roots))
	for i := range locals {
		locals[i] = query.NewVersionResult(q.Name())
	}
	err := r.eachFinder(ctx, "complete_versions", roots, func(ctx context.Context, i int, f tree.ContentFinder) error {
		return f.CompleteVersions(ctx, q, locals[i])
	})
	if err != nil {
		return err
	}
	s := r.MergeStrategy()
	for _, local := range locals {
		for _, v := range local.Versions() {
			res.Merge(v, s.MergeVersion)
		}
	}
	return nil
}

// SearchModules searches every backend. Paged searches return one merged
// page and a continuation token with one offset per backing root.
func (r *Root) SearchModules(ctx context.Context, q query.ModuleQuery, res *query.SearchResult) error {
	yamrQueriesTotal.WithLabelValues("search_modules").Inc()
	roots := r.Roots()
	if !q.IsPaging() {
		locals := newSearchResults(len(roots))
		err := r.eachFinder(ctx, "search_modules", roots, func(ctx context.Context, i int, f tree.ContentFinder) error {
			return f.SearchModules(ctx, q, locals[i])
		})
		if err != nil {
			return err
		}
		r.mergeModules(res, locals, nil)
		return nil
	}
	return r.searchPage(ctx, q, roots, res)
}

func (r *Root) searchPage(ctx context.Context, q query.ModuleQuery, roots []*tree.Node, res *query.SearchResult) error {
	info := q.PagingInfo()
	if info != nil && len(info) != len(roots) {
		return fmt.Errorf("got %d offsets for %d repositories: %w", len(info), len(roots), ErrPagingInfoMismatch)
	}
	// Without a continuation token the window is cut from the merged
	// order, so every backend is read from its first match.
	start, _ := q.Start()
	count, hasCount := q.Count()
	skip := int64(0)
	starts := make([]int64, len(roots))
	if info != nil {
		copy(starts, info)
	} else {
		skip = start
	}
	backendQuery := func(i int) query.ModuleQuery {
		if info != nil {
			return q.AtStart(starts[i])
		}
		if hasCount {
			return q.AtPage(0, start+count)
		}
		return q.AtStart(0)
	}

	locals := newSearchResults(len(roots))
	err := r.eachFinder(ctx, "search_modules", roots, func(ctx context.Context, i int, f tree.ContentFinder) error {
		return f.SearchModules(ctx, backendQuery(i), locals[i])
	})
	if err != nil {
		return err
	}

	union := make(map[string]bool)
	hasMore := false
	for _, local := range locals {
		for _, name := range local.Names() {
			union[name] = true
		}
		if local.HasMoreResults() {
			hasMore = true
		}
	}
	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)

	// consumed holds the skipped names and the page itself.
	end := int64(len(names))
	if hasCount && skip+count < end {
		end = skip + count
	}
	consumed := make(map[string]bool, end)
	page := make(map[string]bool)
	for i, name := range names[:end] {
		consumed[name] = true
		if int64(i) >= skip {
			page[name] = true
		}
	}

	next := make([]int64, len(roots))
	for i, local := range locals {
		n := int64(0)
		for _, name := range local.Names() {
			if consumed[name] {
				n++
			} else {
				hasMore = true
			}
		}
		next[i] = starts[i] + n
	}

	r.mergeModules(res, locals, page)
	res.SetNextPagingInfo(next)
	if hasMore {
		res.SetHasMoreResults(true)
	}
	return nil
}

func newSearchResults(n int) []*query.SearchResult {
	out := make([]*query.SearchResult, n)
	for i := range out {
		out[i] = query.NewSearchResult()
	}
	return out
}

// mergeModules folds backend results into res in registration order. A nil
// keep admits every name.
func (r *Root) mergeModules(res *query.SearchResult, locals []*query.SearchResult, keep map[string]bool) {
	s := r.MergeStrategy()
	for _, local := range locals {
		for _, d := range local.Results() {
			if keep != nil && !keep[d.Name] {
				continue
			}
			res.Merge(d, s.MergeModule)
		}
	}
}
