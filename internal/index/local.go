package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/frederic-klein/yamr/internal/descriptor"
	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
)

// Local is a repository backend over a directory laid out as
// <name segments>/<version>/<name>-<version><suffix>.
type Local struct {
	dir    string
	tree   *tree.Tree
	logger *log.Logger

	mu    sync.Mutex
	idx   *entries
	loads singleflight.Group
}

// LocalOption configures a Local backend.
type LocalOption func(*Local)

// WithLocalLogger sets the logger used for scan warnings.
func WithLocalLogger(l *log.Logger) LocalOption {
	return func(r *Local) { r.logger = l }
}

// NewLocal returns a backend over dir. The directory is scanned on first use.
func NewLocal(dir string, opts ...LocalOption) *Local {
	r := &Local{
		dir:    dir,
		tree:   tree.New("local repository " + dir),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	root := r.tree.Root()
	root.MustAddService(tree.ContentFinderKind, r)
	root.MustAddService(tree.ContentStoreKind, r)
	return r
}

// Root returns the backend's root node.
func (r *Local) Root() *tree.Node { return r.tree.Root() }

// Dir returns the repository directory.
func (r *Local) Dir() string { return r.dir }

// Refresh rescans the repository directory.
func (r *Local) Refresh(ctx context.Context) error {
	records, err := r.scan(ctx)
	if err != nil {
		return err
	}
	idx := newEntries(records, r.tree.Root().Label(), false)
	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()
	return nil
}

func (r *Local) entries(ctx context.Context) (*entries, error) {
	r.mu.Lock()
	idx := r.idx
	r.mu.Unlock()
	if idx != nil {
		return idx, nil
	}
	// Concurrent first calls share one scan.
	_, err, _ := r.loads.Do("scan", func() (any, error) {
		r.mu.Lock()
		loaded := r.idx != nil
		r.mu.Unlock()
		if loaded {
			return nil, nil
		}
		return nil, r.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx, nil
}

// Records returns the scanned content in index form.
func (r *Local) Records(ctx context.Context) ([]Record, error) {
	idx, err := r.entries(ctx)
	if err != nil {
		return nil, err
	}
	return idx.records(), nil
}

type versionKey struct{ module, version string }

// scan walks the directory and builds one record per version directory that
// holds at least one artifact.
func (r *Local) scan(ctx context.Context) ([]Record, error) {
	found := make(map[versionKey][]string) // suffixes
	var order []versionKey

	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		ref, err := dist.ParseArtifactPath(strings.Split(filepath.ToSlash(rel), "/"))
		if err != nil {
			return nil
		}
		if _, ok := dist.PlatformOf(ref.Suffix); !ok {
			return nil
		}
		k := versionKey{ref.Name, ref.Version}
		if _, ok := found[k]; !ok {
			order = append(order, k)
		}
		found[k] = append(found[k], ref.Suffix)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("repository directory does not exist", "dir", r.dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.dir, err)
	}

	records := make([]Record, 0, len(order))
	for _, k := range order {
		records = append(records, r.record(k, found[k]))
	}
	return records, nil
}

func (r *Local) record(k versionKey, suffixes []string) Record {
	versionDir := filepath.Join(append([]string{r.dir}, append(dist.ModulePath(k.module), k.version)...)...)
	rec := Record{Module: k.module, Version: k.version}

	desc, err := descriptor.Load(versionDir)
	if errors.Is(err, descriptor.ErrNoDescriptor) {
		desc, err = r.archiveDescriptor(versionDir, k)
	}
	if err != nil && !errors.Is(err, descriptor.ErrNoDescriptor) {
		r.logger.Warn("unreadable module descriptor", "module", k.module, "version", k.version, "error", err)
	}

	binaries := make(map[string]dist.BinaryVersion)
	if desc != nil {
		vd := desc.VersionDetails(k.module, k.version)
		rec.Doc = vd.Doc
		rec.License = vd.License
		rec.Authors = vd.Authors.Elements()
		rec.Dependencies = vd.Dependencies
		rec.Packages = vd.Packages
		rec.Members = vd.Members
		for _, a := range vd.ArtifactTypes {
			binaries[a.Suffix] = a.Binary
		}
	}
	for _, s := range suffixes {
		rec.Artifacts = append(rec.Artifacts, dist.ArtifactType{Suffix: s, Binary: binaries[s]})
	}
	return rec
}

// archiveDescriptor looks for a descriptor inside the version's source
// archive or tarball.
func (r *Local) archiveDescriptor(versionDir string, k versionKey) (*descriptor.Descriptor, error) {
	for _, suffix := range []string{".src", ".tar.gz"} {
		path := filepath.Join(versionDir, k.module+"-"+k.version+suffix)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return descriptor.FromArchive(path)
	}
	return nil, descriptor.ErrNoDescriptor
}

// CompleteModules implements tree.ContentFinder.
func (r *Local) CompleteModules(ctx context.Context, q query.ModuleQuery, res *query.SearchResult) error {
	idx, err := r.entries(ctx)
	if err != nil {
		return err
	}
	return idx.completeModules(ctx, q, res)
}

// CompleteVersions implements tree.ContentFinder.
func (r *Local) CompleteVersions(ctx context.Context, q query.VersionQuery, res *query.VersionResult) error {
	idx, err := r.entries(ctx)
	if err != nil {
		return err
	}
	return idx.completeVersions(ctx, q, res)
}

// SearchModules implements tree.ContentFinder.
func (r *Local) SearchModules(ctx context.Context, q query.ModuleQuery, res *query.SearchResult) error {
	idx, err := r.entries(ctx)
	if err != nil {
		return err
	}
	return idx.searchModules(ctx, q, res)
}

// Stat reports what the directory holds at p.
func (r *Local) Stat(_ context.Context, p tree.Path) (tree.EntryKind, error) {
	info, err := os.Stat(filepath.Join(append([]string{r.dir}, p...)...))
	if errors.Is(err, fs.ErrNotExist) {
		return tree.Missing, nil
	}
	if err != nil {
		return tree.Missing, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return tree.Directory, nil
	}
	return tree.Leaf, nil
}

// Open opens an artifact file.
func (r *Local) Open(_ context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(append([]string{r.dir}, ref.Path()...)...))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, tree.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", ref, err)
	}
	return f, nil
}
