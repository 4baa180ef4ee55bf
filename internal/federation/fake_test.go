package federation

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
)

// fakeBackend is an in-memory repository serving every platform.
type fakeBackend struct {
	tree     *tree.Tree
	modules  map[string]dist.ModuleDetails
	versions map[string][]dist.VersionDetails
	files    map[string]string // slash path -> content

	queryErr error
	openErr  error
	panics   bool
	block    bool // Open waits for cancellation

	calls atomic.Int32
}

func newFake(label string) *fakeBackend {
	f := &fakeBackend{
		tree:     tree.New(label),
		modules:  make(map[string]dist.ModuleDetails),
		versions: make(map[string][]dist.VersionDetails),
		files:    make(map[string]string),
	}
	f.tree.Root().MustAddService(tree.ContentFinderKind, f)
	f.tree.Root().MustAddService(tree.ContentStoreKind, f)
	return f
}

func (f *fakeBackend) root() *tree.Node { return f.tree.Root() }

func (f *fakeBackend) withModules(names ...string) *fakeBackend {
	for _, n := range names {
		f.modules[n] = dist.ModuleDetails{Name: n, Doc: f.tree.Root().Label() + " " + n}
	}
	return f
}

func (f *fakeBackend) withVersion(module, version string) *fakeBackend {
	f.versions[module] = append(f.versions[module], dist.VersionDetails{
		Module:  module,
		Version: version,
		Origin:  f.tree.Root().Label(),
	})
	return f
}

func (f *fakeBackend) withFile(ref dist.ArtifactRef, content string) *fakeBackend {
	f.files[strings.Join(ref.Path(), "/")] = content
	return f
}

func (f *fakeBackend) names() []string {
	var out []string
	for n := range f.modules {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (f *fakeBackend) enter() error {
	f.calls.Add(1)
	if f.panics {
		panic("backend exploded")
	}
	return f.queryErr
}

func (f *fakeBackend) CompleteModules(_ context.Context, q query.ModuleQuery, r *query.SearchResult) error {
	if err := f.enter(); err != nil {
		return err
	}
	for _, n := range f.names() {
		if q.MatchesPrefix(n) {
			r.Add(f.modules[n])
		}
	}
	return nil
}

func (f *fakeBackend) CompleteVersions(_ context.Context, q query.VersionQuery, r *query.VersionResult) error {
	if err := f.enter(); err != nil {
		return err
	}
	for _, v := range f.versions[q.Name()] {
		if q.MatchesVersion(v.Version) {
			r.Add(v)
		}
	}
	return nil
}

func (f *fakeBackend) SearchModules(_ context.Context, q query.ModuleQuery, r *query.SearchResult) error {
	if err := f.enter(); err != nil {
		return err
	}
	pager := q.NewPager()
	for _, n := range f.names() {
		if !q.MatchesSubstring(n) {
			continue
		}
		add, more := pager.Accept(r)
		if !more {
			return nil
		}
		if add {
			r.Add(f.modules[n])
		}
	}
	return nil
}

func (f *fakeBackend) Stat(_ context.Context, p tree.Path) (tree.EntryKind, error) {
	if len(p) == 0 {
		return tree.Directory, nil
	}
	key := p.String()
	if _, ok := f.files[key]; ok {
		return tree.Leaf, nil
	}
	for path := range f.files {
		if strings.HasPrefix(path, key+"/") {
			return tree.Directory, nil
		}
	}
	return tree.Missing, nil
}

func (f *fakeBackend) Open(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	content, ok := f.files[strings.Join(ref.Path(), "/")]
	if !ok {
		return nil, tree.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// upperTransformer upper-cases the stream; it records its invocations.
type upperTransformer struct {
	name string
	log  *[]string
}

func (u upperTransformer) Transform(_ context.Context, _ dist.ArtifactRef, rc io.ReadCloser) (io.ReadCloser, error) {
	*u.log = append(*u.log, u.name)
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(strings.ToUpper(string(data)))), nil
}

// suffixTransformer appends its name to the stream.
type suffixTransformer struct {
	name string
	log  *[]string
}

func (s suffixTransformer) Transform(_ context.Context, _ dist.ArtifactRef, rc io.ReadCloser) (io.ReadCloser, error) {
	*s.log = append(*s.log, s.name)
	return struct {
		io.Reader
		io.Closer
	}{io.MultiReader(rc, strings.NewReader("+"+s.name)), rc}, nil
}

var errBackend = errors.New("backend unavailable")
