package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
)

// DefaultTTL is how long a downloaded index stays fresh.
const DefaultTTL = 24 * time.Hour

// Remote is a repository backend over an HTTP repository publishing
// <url>/index.json.gz and serving artifacts under <url>/artifacts/.
type Remote struct {
	url       string
	cacheDir  string
	cacheFile string
	ttl       time.Duration
	offline   bool
	client    *http.Client
	tree      *tree.Tree
	logger    *log.Logger

	mu    sync.Mutex
	idx   *entries
	loads singleflight.Group
}

// RemoteOption configures a Remote backend.
type RemoteOption func(*Remote)

// WithTTL sets how long the cached index is used before it is downloaded again.
func WithTTL(d time.Duration) RemoteOption {
	return func(r *Remote) { r.ttl = d }
}

// WithOffline makes the backend use its cached index regardless of age and
// never download it.
func WithOffline(offline bool) RemoteOption {
	return func(r *Remote) { r.offline = offline }
}

// WithHTTPClient sets the client used for all requests.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l *log.Logger) RemoteOption {
	return func(r *Remote) { r.logger = l }
}

// NewRemote creates a backend for the repository at url. The index is cached
// under cacheDir; an empty cacheDir keeps it in memory only.
func NewRemote(url, cacheDir string, opts ...RemoteOption) *Remote {
	url = strings.TrimSuffix(url, "/")
	r := &Remote{
		url:      url,
		cacheDir: cacheDir,
		ttl:      DefaultTTL,
		client:   &http.Client{},
		tree:     tree.New("remote repository " + url),
		logger:   log.Default(),
	}
	if cacheDir != "" {
		sum := sha256.Sum256([]byte(url))
		r.cacheFile = filepath.Join(cacheDir, "index-"+hex.EncodeToString(sum[:6])+".json.gz")
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
func (r *Remote) Root() *tree.Node { return r.tree.Root() }

// URL returns the repository base URL.
func (r *Remote) URL() string { return r.url }

// Load fetches the index, using the cached copy while it is fresh. A stale
// cache is still used when the download fails.
func (r *Remote) Load(ctx context.Context) error {
	if r.cacheFile == "" {
		if r.offline {
			return fmt.Errorf("%s: offline without an index cache", r.url)
		}
		f, err := r.fetchIndex(ctx)
		if err != nil {
			return err
		}
		r.setIndex(f)
		return nil
	}

	if err := os.MkdirAll(r.cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	if r.offline || r.isCacheValid() {
		return r.parseCache()
	}

	if err := r.download(ctx); err != nil {
		if _, statErr := os.Stat(r.cacheFile); statErr == nil {
			r.logger.Warn("using stale index", "url", r.url, "error", err)
			return r.parseCache()
		}
		return err
	}

	return r.parseCache()
}

func (r *Remote) isCacheValid() bool {
	info, err := os.Stat(r.cacheFile)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < r.ttl
}

func (r *Remote) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return r.client.Do(req)
}

func (r *Remote) fetchIndex(ctx context.Context) (File, error) {
	resp, err := r.get(ctx, r.url+"/"+FileName)
	if err != nil {
		return File{}, fmt.Errorf("downloading index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("downloading index: HTTP %d", resp.StatusCode)
	}
	return ReadFile(resp.Body)
}

// download stores the index in the cache. The previous copy is replaced only
// once the new one is complete.
func (r *Remote) download(ctx context.Context) error {
	resp, err := r.get(ctx, r.url+"/"+FileName)
	if err != nil {
		return fmt.Errorf("downloading index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading index: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(r.cacheDir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, r.cacheFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (r *Remote) parseCache() error {
	file, err := os.Open(r.cacheFile)
	if err != nil {
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer file.Close()

	f, err := ReadFile(file)
	if err != nil {
		return fmt.Errorf("%s: %w", r.cacheFile, err)
	}
	r.setIndex(f)
	return nil
}

func (r *Remote) setIndex(f File) {
	idx := newEntries(f.Records, r.tree.Root().Label(), true)
	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()
	r.logger.Debug("index loaded", "url", r.url, "records", len(f.Records))
}

func (r *Remote) entries(ctx context.Context) (*entries, error) {
	r.mu.Lock()
	idx := r.idx
	r.mu.Unlock()
	if idx != nil {
		return idx, nil
	}
	// Concurrent first calls share one load.
	_, err, _ := r.loads.Do("load", func() (any, error) {
		r.mu.Lock()
		loaded := r.idx != nil
		r.mu.Unlock()
		if loaded {
			return nil, nil
		}
		return nil, r.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx, nil
}

// CompleteModules implements tree.ContentFinder.
func (r *Remote) CompleteModules(ctx context.Context, q query.ModuleQuery, res *query.SearchResult) error {
	idx, err := r.entries(ctx)
	if err != nil {
		return err
	}
	return idx.completeModules(ctx, q, res)
}

// CompleteVersions implements tree.ContentFinder.
func (r *Remote) CompleteVersions(ctx context.Context, q query.VersionQuery, res *query.VersionResult) error {
	idx, err := r.entries(ctx)
	if err != nil {
		return err
	}
	return idx.completeVersions(ctx, q, res)
}

// SearchModules implements tree.ContentFinder.
func (r *Remote) SearchModules(ctx context.Context, q query.ModuleQuery, res *query.SearchResult) error {
	idx, err := r.entries(ctx)
	if err != nil {
		return err
	}
	return idx.searchModules(ctx, q, res)
}

// Stat answers from the index without contacting the server.
func (r *Remote) Stat(ctx context.Context, p tree.Path) (tree.EntryKind, error) {
	idx, err := r.entries(ctx)
	if err != nil {
		return tree.Missing, err
	}
	return idx.stat(p), nil
}

// Open downloads an artifact. The caller closes the returned body.
func (r *Remote) Open(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	url := r.url + "/artifacts/" + strings.Join(ref.Path(), "/")
	resp, err := r.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", ref, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", ref, tree.ErrNotFound)
	}
	resp.Body.Close()
	return nil, fmt.Errorf("downloading %s: HTTP %d", ref, resp.StatusCode)
}
