package federation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/tree"
)

// candidates asks every backing store what it holds at p. Stores that fail
// are logged and treated as not holding the entry.
func (r *Root) candidates(ctx context.Context, p tree.Path) ([]tree.Candidate, error) {
	roots := r.Roots()
	kinds := make([]tree.EntryKind, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, n := range roots {
		store, ok := n.Store()
		if !ok {
			continue
		}
		g.Go(func() error {
			return r.callBackend(gctx, "stat", n, func(ctx context.Context) error {
				kind, err := store.Stat(ctx, p)
				if err != nil {
					return err
				}
				kinds[i] = kind
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []tree.Candidate
	for i, kind := range kinds {
		if kind != tree.Missing {
			out = append(out, tree.Candidate{Root: roots[i], Index: i, Kind: kind})
		}
	}
	return out, nil
}

func (r *Root) lookup(ctx context.Context, p tree.Path) (*tree.Node, tree.Candidate, error) {
	cands, err := r.candidates(ctx, p)
	if err != nil {
		return nil, tree.Candidate{}, err
	}
	if len(cands) == 0 {
		return nil, tree.Candidate{}, fmt.Errorf("/%s: %w", p, ErrNotFound)
	}
	s := r.MergeStrategy()
	sel, err := s.Select(p, cands)
	if err != nil {
		return nil, tree.Candidate{}, err
	}
	merged := r.tree.Walk(p)
	s.Attach(merged, sel, r.tree.Root())
	return merged, sel, nil
}

// Lookup resolves p against the backing repositories and returns the merged
// node, materialized with the services of the repository that owns it.
func (r *Root) Lookup(ctx context.Context, p tree.Path) (*tree.Node, error) {
	n, _, err := r.lookup(ctx, p)
	return n, err
}

// Stat implements tree.ContentStore without materializing nodes.
func (r *Root) Stat(ctx context.Context, p tree.Path) (tree.EntryKind, error) {
	cands, err := r.candidates(ctx, p)
	if err != nil || len(cands) == 0 {
		return tree.Missing, err
	}
	sel, err := r.MergeStrategy().Select(p, cands)
	if err != nil {
		return tree.Missing, err
	}
	return sel.Kind, nil
}

// Open implements tree.ContentStore: it locates ref, opens it in the owning
// repository and runs the merged node's transformers over the stream.
func (r *Root) Open(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	n, sel, err := r.lookup(ctx, ref.Path())
	if err != nil {
		return nil, err
	}
	store, ok := n.Store()
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}

	origin := sel.Root.Label()
	rc, err := store.Open(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &FetchError{Ref: ref, Origin: origin, Err: err}
	}
	if t, ok := n.Transformer(); ok {
		out, err := t.Transform(ctx, ref, rc)
		if err != nil {
			rc.Close()
			return nil, &FetchError{Ref: ref, Origin: origin, Err: err}
		}
		rc = out
	}
	return rc, nil
}

// Fetch is Open bounded by the configured timeout. The timeout covers reading
// the stream too; it is released when the stream is closed.
func (r *Root) Fetch(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	begin := time.Now()
	cancel := context.CancelFunc(func() {})
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}

	rc, err := r.Open(ctx, ref)
	yamrFetchDuration.Observe(time.Since(begin).Seconds())
	switch {
	case errors.Is(err, ErrNotFound):
		yamrFetchesTotal.WithLabelValues("not_found").Inc()
	case err != nil:
		yamrFetchesTotal.WithLabelValues("error").Inc()
	default:
		yamrFetchesTotal.WithLabelValues("ok").Inc()
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
