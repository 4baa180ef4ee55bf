package index

import (
	"context"
	"sort"
	"strings"

	"bitbucket.org/creachadair/stringset"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
	"github.com/frederic-klein/yamr/internal/version"
)

type moduleEntry struct {
	name     string
	versions []dist.VersionDetails // oldest first
	packages []string
	members  []string
}

// entries is an immutable in-memory module index answering the finder
// operations. Backends rebuild it instead of mutating it.
type entries struct {
	names   []string
	modules map[string]*moduleEntry
	files   stringset.Set // artifact paths, slash separated
}

func newEntries(records []Record, origin string, remote bool) *entries {
	e := &entries{modules: make(map[string]*moduleEntry), files: stringset.New()}
	for _, rec := range records {
		if rec.Module == "" || rec.Version == "" {
			continue
		}
		m, ok := e.modules[rec.Module]
		if !ok {
			m = &moduleEntry{name: rec.Module}
			e.modules[rec.Module] = m
			e.names = append(e.names, rec.Module)
		}
		if m.version(rec.Version) != nil {
			continue
		}
		vd := dist.VersionDetails{
			Module:        rec.Module,
			Version:       rec.Version,
			Doc:           rec.Doc,
			License:       rec.License,
			Authors:       stringset.New(rec.Authors...),
			Dependencies:  append([]dist.Dependency(nil), rec.Dependencies...),
			ArtifactTypes: dist.UnionArtifactTypes(rec.Artifacts),
			Packages:      append([]string(nil), rec.Packages...),
			Members:       append([]string(nil), rec.Members...),
			Remote:        remote,
			Origin:        origin,
		}
		dist.SortDependencies(vd.Dependencies)
		m.versions = append(m.versions, vd)
		m.packages = union(m.packages, rec.Packages)
		m.members = union(m.members, rec.Members)
		for _, a := range vd.ArtifactTypes {
			ref := dist.ArtifactRef{Name: rec.Module, Version: rec.Version, Suffix: a.Suffix}
			e.files.Add(strings.Join(ref.Path(), "/"))
		}
	}
	sort.Strings(e.names)
	for _, m := range e.modules {
		sort.SliceStable(m.versions, func(i, j int) bool {
			return version.Compare(m.versions[i].Version, m.versions[j].Version) < 0
		})
	}
	return e
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	s := stringset.New(a...)
	s.Add(b...)
	return s.Elements()
}

func (m *moduleEntry) version(v string) *dist.VersionDetails {
	for i := range m.versions {
		if m.versions[i].Version == v {
			return &m.versions[i]
		}
	}
	return nil
}

// compatible returns the versions of m usable by q, oldest first.
func (m *moduleEntry) compatible(q query.ModuleQuery) []dist.VersionDetails {
	var out []dist.VersionDetails
	for _, v := range m.versions {
		if version.AnyBinaryCompatible(q, v.ArtifactTypes) {
			out = append(out, v)
		}
	}
	return out
}

// details summarizes the versions usable by q. The newest one provides doc,
// license and dependencies; artifact types are those of q's platform.
func (m *moduleEntry) details(q query.ModuleQuery) (dist.ModuleDetails, bool) {
	versions := m.compatible(q)
	if len(versions) == 0 {
		return dist.ModuleDetails{}, false
	}
	latest := versions[len(versions)-1]
	d := dist.ModuleDetails{
		Name:         m.name,
		Doc:          latest.Doc,
		License:      latest.License,
		Authors:      stringset.New(),
		Dependencies: append([]dist.Dependency(nil), latest.Dependencies...),
	}
	var types [][]dist.ArtifactType
	for _, v := range versions {
		d.Versions = append(d.Versions, v.Version)
		d.Authors.Add(v.Authors.Elements()...)
		types = append(types, dist.ArtifactTypesFor(v.ArtifactTypes, q.Platform()))
	}
	d.ArtifactTypes = dist.UnionArtifactTypes(types...)
	return d, true
}

func (e *entries) completeModules(ctx context.Context, q query.ModuleQuery, r *query.SearchResult) error {
	start := sort.SearchStrings(e.names, q.Name())
	for _, name := range e.names[start:] {
		if !q.MatchesPrefix(name) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d, ok := e.modules[name].details(q); ok {
			r.Add(d)
		}
	}
	return nil
}

func (e *entries) completeVersions(ctx context.Context, q query.VersionQuery, r *query.VersionResult) error {
	m, ok := e.modules[q.Name()]
	if !ok {
		return nil
	}
	for _, v := range m.compatible(q.ModuleQuery) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.MatchesVersion(v.Version) {
			r.Add(v)
		}
	}
	return nil
}

func (e *entries) searchModules(ctx context.Context, q query.ModuleQuery, r *query.SearchResult) error {
	pager := q.NewPager()
	for _, name := range e.names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !q.MatchesSubstring(name) {
			continue
		}
		m := e.modules[name]
		if !q.MatchesMember(m.packages, m.members) {
			continue
		}
		d, ok := m.details(q)
		if !ok {
			continue
		}
		add, more := pager.Accept(r)
		if !more {
			return nil
		}
		if add {
			r.Add(d)
		}
	}
	return nil
}

// stat reports what the index holds at p: module name prefixes and version
// directories are directories, artifact files are leaves.
func (e *entries) stat(p tree.Path) tree.EntryKind {
	if len(p) == 0 {
		return tree.Directory
	}
	if e.files.Contains(p.String()) {
		return tree.Leaf
	}
	joined := strings.Join(p, ".")
	for _, name := range e.names[sort.SearchStrings(e.names, joined):] {
		if !strings.HasPrefix(name, joined) {
			break
		}
		if name == joined || name[len(joined)] == '.' {
			return tree.Directory
		}
	}
	if len(p) > 1 {
		if m, ok := e.modules[strings.Join(p[:len(p)-1], ".")]; ok && m.version(p[len(p)-1]) != nil {
			return tree.Directory
		}
	}
	return tree.Missing
}

// records returns the index content in its published form.
func (e *entries) records() []Record {
	var out []Record
	for _, name := range e.names {
		m := e.modules[name]
		for _, v := range m.versions {
			rec := recordOf(v)
			rec.Packages = append([]string(nil), m.packages...)
			rec.Members = append([]string(nil), m.members...)
			out = append(out, rec)
		}
	}
	return out
}
