// Package cache keeps a local copy of every artifact streamed through it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yamr/internal/dist"
)

// SumSuffix is appended to an artifact's cache path to name its checksum file.
const SumSuffix = ".sha256"

// ErrChecksum is returned by Verify when a cached file does not match its checksum.
var ErrChecksum = errors.New("checksum mismatch")

// Transformer is a content transformer that tees artifacts into a cache
// directory using the repository layout. Cache failures are logged and never
// affect the stream handed to the caller.
type Transformer struct {
	dir    string
	logger *log.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger for cache failures.
func WithLogger(l *log.Logger) Option {
	return func(c *Transformer) { c.logger = l }
}

// New returns a caching transformer writing below dir.
func New(dir string, opts ...Option) *Transformer {
	c := &Transformer{dir: dir, logger: log.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the cache directory.
func (c *Transformer) Dir() string { return c.dir }

// Path returns where ref is cached.
func (c *Transformer) Path(ref dist.ArtifactRef) string {
	return filepath.Join(append([]string{c.dir}, ref.Path()...)...)
}

// Has reports whether ref is in the cache.
func (c *Transformer) Has(ref dist.ArtifactRef) bool {
	_, err := os.Stat(c.Path(ref))
	return err == nil
}

// Verify checks a cached artifact against its checksum file.
func (c *Transformer) Verify(ref dist.ArtifactRef) error {
	path := c.Path(ref)
	want, err := os.ReadFile(path + SumSuffix)
	if err != nil {
		return fmt.Errorf("reading checksum: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", ref, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("reading %s: %w", ref, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != strings.TrimSpace(string(want)) {
		return fmt.Errorf("%s: %w", ref, ErrChecksum)
	}
	return nil
}

// Fetcher opens artifacts from a repository.
type Fetcher interface {
	Fetch(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error)
}

// ReadThrough returns a Fetcher serving artifacts from the cache when the
// cached copy verifies, and from next otherwise.
func (c *Transformer) ReadThrough(next Fetcher) Fetcher {
	return readThrough{c: c, next: next}
}

type readThrough struct {
	c    *Transformer
	next Fetcher
}

func (r readThrough) Fetch(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	if r.c.Has(ref) {
		err := r.c.Verify(ref)
		if err == nil {
			if f, err := os.Open(r.c.Path(ref)); err == nil {
				r.c.logger.Debug("served from cache", "artifact", ref.String())
				return f, nil
			}
		} else {
			r.c.logger.Warn("ignoring cached artifact", "artifact", ref.String(), "error", err)
		}
	}
	return r.next.Fetch(ctx, ref)
}

// Transform implements tree.ContentTransformer.
func (c *Transformer) Transform(_ context.Context, ref dist.ArtifactRef, rc io.ReadCloser) (io.ReadCloser, error) {
	dest := c.Path(ref)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		c.logger.Warn("cache unavailable", "artifact", ref, "error", err)
		return rc, nil
	}
	// Each stream gets its own temp file; concurrent fetches of the same
	// artifact race only on the final rename.
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+ref.FileName()+".*.tmp")
	if err != nil {
		c.logger.Warn("cache unavailable", "artifact", ref, "error", err)
		return rc, nil
	}
	return &tee{c: c, ref: ref, dest: dest, src: rc, tmp: tmp, hash: sha256.New()}, nil
}

type tee struct {
	c    *Transformer
	ref  dist.ArtifactRef
	dest string
	src  io.ReadCloser
	tmp  *os.File
	hash hash.Hash

	complete bool
	failed   bool
	closed   bool
}

func (t *tee) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 && !t.failed {
		t.hash.Write(p[:n])
		if _, werr := t.tmp.Write(p[:n]); werr != nil {
			t.failed = true
			t.c.logger.Warn("cache write failed", "artifact", t.ref, "error", werr)
		}
	}
	if err == io.EOF {
		t.complete = true
	}
	return n, err
}

// Close publishes the cached copy if the stream was read to the end and
// discards it otherwise.
func (t *tee) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.src.Close()

	tmpPath := t.tmp.Name()
	if cerr := t.tmp.Close(); cerr != nil && !t.failed {
		t.failed = true
		t.c.logger.Warn("cache write failed", "artifact", t.ref, "error", cerr)
	}
	if !t.complete || t.failed {
		os.Remove(tmpPath)
		return err
	}
	if perr := t.publish(tmpPath); perr != nil {
		t.c.logger.Warn("cache publish failed", "artifact", t.ref, "error", perr)
	}
	return err
}

func (t *tee) publish(tmpPath string) error {
	if err := os.Rename(tmpPath, t.dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}
	sum, err := os.CreateTemp(filepath.Dir(t.dest), "."+t.ref.FileName()+".*.sum")
	if err != nil {
		return fmt.Errorf("creating checksum: %w", err)
	}
	sumPath := sum.Name()
	_, err = io.WriteString(sum, hex.EncodeToString(t.hash.Sum(nil))+"\n")
	if cerr := sum.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(sumPath)
		return fmt.Errorf("writing checksum: %w", err)
	}
	if err := os.Rename(sumPath, t.dest+SumSuffix); err != nil {
		os.Remove(sumPath)
		return fmt.Errorf("renaming checksum: %w", err)
	}
	return nil
}
