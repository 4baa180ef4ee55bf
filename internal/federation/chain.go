package federation

import (
	"context"
	"fmt"
	"io"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/tree"
)

// Chain applies transformers in order around a raw artifact stream; the
// first one sees the bytes closest to the backend.
type Chain []tree.ContentTransformer

// Transform implements tree.ContentTransformer. If a transformer fails the
// stream is closed.
func (c Chain) Transform(ctx context.Context, ref dist.ArtifactRef, rc io.ReadCloser) (io.ReadCloser, error) {
	for i, t := range c {
		next, err := t.Transform(ctx, ref, rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("transformer %d: %w", i, err)
		}
		rc = next
	}
	return rc, nil
}
