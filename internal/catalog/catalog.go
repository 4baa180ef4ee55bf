// Package catalog serves fixed, platform-provided module catalogs such as the
// JDK's as a repository backend.
package catalog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
)

// JDKVersion is the single version every JDK module is reported at.
const JDKVersion = "7"

// Catalog is a read-only table of modules provided by a platform. All of its
// modules exist at one fixed version.
type Catalog struct {
	kind     string
	platform dist.Platform
	version  string
	modules  []string
	packages map[string][]string
}

// New builds a catalog. Module names are sorted and deduplicated. packages
// maps a module to the packages it declares and may be nil.
func New(kind string, platform dist.Platform, version string, modules []string, packages map[string][]string) *Catalog {
	seen := make(map[string]bool, len(modules))
	var sorted []string
	for _, m := range modules {
		if m != "" && !seen[m] {
			seen[m] = true
			sorted = append(sorted, m)
		}
	}
	sort.Strings(sorted)

	var pkgs map[string][]string
	if packages != nil {
		pkgs = make(map[string][]string, len(packages))
		for m, p := range packages {
			pkgs[m] = append([]string{}, p...)
		}
	}
	return &Catalog{
		kind:     kind,
		platform: platform,
		version:  version,
		modules:  sorted,
		packages: pkgs,
	}
}

// JDK returns the catalog of JDK platform modules.
func JDK() *Catalog {
	return New("JDK", dist.PlatformJVM, JDKVersion, jdkModules, nil)
}

var jdkModules = []string{
	"jdk.base",
	"jdk.logging",
	"jdk.management",
	"jdk.instrument",
	"jdk.rmi",
	"jdk.prefs",
	"jdk.tls",
	"jdk.kerberos",
	"jdk.auth",
	"jdk.xmldsig",
	"jdk.security.acl",
	"jdk.jndi",
	"jdk.jta",
	"jdk.jdbc",
	"jdk.jdbc.rowset",
	"jdk.scripting",
	"jdk.jaxp",
	"jdk.jaxws",
	"jdk.jx.annotations",
	"jdk.corba",
	"jdk.desktop",
	"jdk.compiler",
	"oracle.jdk.base",
	"oracle.sun.charsets",
	"oracle.jdk.logging",
	"oracle.jdk.management.iiop",
	"oracle.jdk.management",
	"oracle.jdk.tools.jre",
	"oracle.jdk.instrument",
	"oracle.jdk.rmi",
	"oracle.jdk.auth",
	"oracle.jdk.xmldsig",
	"oracle.jdk.smartcardio",
	"oracle.jdk.security.acl",
	"oracle.jdk.jndi",
	"oracle.jdk.cosnaming",
	"oracle.jdk.jdbc.rowset",
	"oracle.jdk.scripting",
	"oracle.jdk.httpserver",
	"oracle.jdk.sctp",
	"oracle.jdk.desktop",
	"oracle.jdk.jaxp",
	"oracle.jdk.tools.jaxws",
	"oracle.jdk.jaxws",
	"oracle.jdk.corba",
	"oracle.jdk.deploy",
	"oracle.jdk.compat",
	"oracle.jdk.tools.base",
}

// Kind returns the catalog's label, e.g. "JDK".
func (c *Catalog) Kind() string { return c.kind }

// Platform returns the only platform the catalog serves.
func (c *Catalog) Platform() dist.Platform { return c.platform }

// Version returns the fixed version of every module.
func (c *Catalog) Version() string { return c.version }

// Modules returns the sorted module names.
func (c *Catalog) Modules() []string {
	return append([]string{}, c.modules...)
}

// Contains reports whether the catalog lists module.
func (c *Catalog) Contains(module string) bool {
	i := sort.SearchStrings(c.modules, module)
	return i < len(c.modules) && c.modules[i] == module
}

func (c *Catalog) doc(module string) string {
	return c.kind + " module " + module
}

func (c *Catalog) details(module string) dist.ModuleDetails {
	return dist.ModuleDetails{
		Name:     module,
		Doc:      c.doc(module),
		Versions: []string{c.version},
	}
}

// Provider exposes a catalog as a repository backend. It is safe for
// concurrent use; the catalog never changes.
type Provider struct {
	catalog *Catalog
	tree    *tree.Tree
}

// NewProvider returns a backend over c. Its root node carries the provider
// as both finder and store.
func NewProvider(c *Catalog) *Provider {
	p := &Provider{
		catalog: c,
		tree:    tree.New(c.kind + " modules repository"),
	}
	root := p.tree.Root()
	root.MustAddService(tree.ContentFinderKind, p)
	root.MustAddService(tree.ContentStoreKind, p)
	return p
}

// NewJDKProvider returns a backend serving the JDK catalog.
func NewJDKProvider() *Provider {
	return NewProvider(JDK())
}

// Root returns the provider's root node.
func (p *Provider) Root() *tree.Node { return p.tree.Root() }

// Catalog returns the served catalog.
func (p *Provider) Catalog() *Catalog { return p.catalog }

// CompleteModules adds every module whose name starts with the query name.
func (p *Provider) CompleteModules(ctx context.Context, q query.ModuleQuery, r *query.SearchResult) error {
	if q.Platform() != p.catalog.platform {
		return nil
	}
	for _, m := range p.catalog.modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.MatchesPrefix(m) {
			r.Add(p.catalog.details(m))
		}
	}
	return nil
}

// CompleteVersions adds the fixed version of a listed module.
func (p *Provider) CompleteVersions(ctx context.Context, q query.VersionQuery, r *query.VersionResult) error {
	if q.Platform() != p.catalog.platform || !p.catalog.Contains(q.Name()) {
		return nil
	}
	if !q.MatchesVersion(p.catalog.version) {
		return nil
	}
	r.Add(dist.VersionDetails{
		Module:   q.Name(),
		Version:  p.catalog.version,
		Doc:      p.catalog.doc(q.Name()),
		Packages: p.catalog.packages[q.Name()],
		Members:  p.catalog.packages[q.Name()],
		Origin:   p.tree.Root().Label(),
	})
	return nil
}

// SearchModules adds the modules whose name contains the query name,
// honouring the query's window.
func (p *Provider) SearchModules(ctx context.Context, q query.ModuleQuery, r *query.SearchResult) error {
	if q.Platform() != p.catalog.platform {
		return nil
	}
	if _, ok := q.Member(); ok && p.catalog.packages == nil {
		return nil
	}

	pager := q.NewPager()
	for _, m := range p.catalog.modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !q.MatchesSubstring(m) {
			continue
		}
		if pkgs := p.catalog.packages[m]; !q.MatchesMember(pkgs, pkgs) {
			continue
		}
		add, more := pager.Accept(r)
		if !more {
			return nil
		}
		if add {
			r.Add(p.catalog.details(m))
		}
	}
	return nil
}

// Stat reports the module and version directories of the catalog. Catalog
// modules hold no artifacts.
func (p *Provider) Stat(_ context.Context, path tree.Path) (tree.EntryKind, error) {
	if len(path) == 0 {
		return tree.Directory, nil
	}
	joined := strings.Join(path, ".")
	for _, m := range p.catalog.modules {
		if m == joined || strings.HasPrefix(m, joined+".") {
			return tree.Directory, nil
		}
	}
	// name segments followed by the version
	if len(path) > 1 && path[len(path)-1] == p.catalog.version {
		if p.catalog.Contains(strings.Join(path[:len(path)-1], ".")) {
			return tree.Directory, nil
		}
	}
	return tree.Missing, nil
}

// Open always fails: platform modules are provided by the runtime.
func (p *Provider) Open(_ context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%s: %s is provided by the platform: %w", p.tree.Root().Label(), ref, tree.ErrNotFound)
}
